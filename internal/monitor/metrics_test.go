package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyHistogramStats(t *testing.T) {
	h := NewLatencyHistogram(10)
	for _, v := range []float64{10, 20, 30, 40, 50} {
		h.Record(v)
	}

	stats := h.Stats()
	assert.Equal(t, 5, stats.Count)
	assert.InDelta(t, 10, stats.Min, 1e-9)
	assert.InDelta(t, 50, stats.Max, 1e-9)
	assert.InDelta(t, 30, stats.Avg, 1e-9)
	assert.InDelta(t, 30, stats.P50, 1e-9)
}

func TestLatencyHistogramSlidingWindow(t *testing.T) {
	h := NewLatencyHistogram(3)
	for _, v := range []float64{1, 2, 3, 4} {
		h.Record(v)
	}

	stats := h.Stats()
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 2, stats.Min, 1e-9)
	assert.InDelta(t, 4, stats.Max, 1e-9)
}

func TestLatencyHistogramCacheInvalidation(t *testing.T) {
	h := NewLatencyHistogram(10)
	h.Record(10)
	first := h.Stats()
	assert.Equal(t, 1, first.Count)

	h.Record(20)
	second := h.Stats()
	assert.Equal(t, 2, second.Count)
	assert.InDelta(t, 20, second.Max, 1e-9)
}

func TestSnapshotCounters(t *testing.T) {
	m := NewSystemMetrics()
	m.IncrementOrders()
	m.IncrementOrders()
	m.IncrementRejections()
	m.IncrementTicks()
	m.IncrementErrors()
	m.IncrementAPI()

	snap := m.GetSnapshot()
	assert.Equal(t, uint64(2), snap.OrdersSubmitted)
	assert.Equal(t, uint64(1), snap.OrdersRejected)
	assert.Equal(t, uint64(1), snap.TicksProcessed)
	assert.Equal(t, uint64(1), snap.ErrorsCount)
	assert.Equal(t, uint64(1), snap.APIRequests)
	assert.Greater(t, snap.GoroutineCount, 0)
}

func TestPerformanceScoreDegradesWithLatency(t *testing.T) {
	m := NewSystemMetrics()
	healthy := m.PerformanceScore()

	for i := 0; i < 100; i++ {
		m.GatewayLatency.Record(3000)
	}
	degraded := m.PerformanceScore()
	assert.Less(t, degraded, healthy)
}

func TestTimerRecords(t *testing.T) {
	h := NewLatencyHistogram(10)
	timer := NewTimer(h)
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()

	assert.Greater(t, elapsed, time.Duration(0))
	assert.Equal(t, 1, h.Stats().Count)
}
