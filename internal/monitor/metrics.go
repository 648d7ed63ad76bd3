package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks overall engine performance.
type SystemMetrics struct {
	// Latency histograms
	GatewayLatency *LatencyHistogram
	OrderLatency   *LatencyHistogram
	APILatency     *LatencyHistogram
	DBLatency      *LatencyHistogram

	// Counters
	ordersSubmitted uint64
	ordersRejected  uint64
	ticksProcessed  uint64
	errorsCount     uint64
	apiRequests     uint64
	apiErrors       uint64

	lastUpdate time.Time
}

// LatencyHistogram tracks latency samples with a sliding window.
// Stats are computed lazily and cached until new samples arrive.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		GatewayLatency: NewLatencyHistogram(1000),
		OrderLatency:   NewLatencyHistogram(1000),
		APILatency:     NewLatencyHistogram(1000),
		DBLatency:      NewLatencyHistogram(1000),
		lastUpdate:     time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	min, max := sorted[0], sorted[n-1]
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   min,
		Max:   max,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementOrders increments the submitted-order counter.
func (m *SystemMetrics) IncrementOrders() {
	atomic.AddUint64(&m.ordersSubmitted, 1)
}

// IncrementRejections increments the rejected-order counter.
func (m *SystemMetrics) IncrementRejections() {
	atomic.AddUint64(&m.ordersRejected, 1)
}

// IncrementTicks increments the processed-tick counter.
func (m *SystemMetrics) IncrementTicks() {
	atomic.AddUint64(&m.ticksProcessed, 1)
}

// IncrementErrors increments the error counter.
func (m *SystemMetrics) IncrementErrors() {
	atomic.AddUint64(&m.errorsCount, 1)
}

// IncrementAPI increments the API request counter.
func (m *SystemMetrics) IncrementAPI() {
	atomic.AddUint64(&m.apiRequests, 1)
}

// IncrementAPIErrors increments the API error counter.
func (m *SystemMetrics) IncrementAPIErrors() {
	atomic.AddUint64(&m.apiErrors, 1)
}

// MetricsSnapshot is a point-in-time metrics view.
type MetricsSnapshot struct {
	GatewayLatency  LatencyStats `json:"gateway_latency"`
	OrderLatency    LatencyStats `json:"order_latency"`
	APILatency      LatencyStats `json:"api_latency"`
	DBLatency       LatencyStats `json:"db_latency"`
	OrdersSubmitted uint64       `json:"orders_submitted"`
	OrdersRejected  uint64       `json:"orders_rejected"`
	TicksProcessed  uint64       `json:"ticks_processed"`
	ErrorsCount     uint64       `json:"errors_count"`
	APIRequests     uint64       `json:"api_requests"`
	APIErrors       uint64       `json:"api_errors"`
	GoroutineCount  int          `json:"goroutine_count"`
	HeapAlloc       uint64       `json:"heap_alloc_bytes"`
	HeapSys         uint64       `json:"heap_sys_bytes"`
	Timestamp       time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		GatewayLatency:  m.GatewayLatency.Stats(),
		OrderLatency:    m.OrderLatency.Stats(),
		APILatency:      m.APILatency.Stats(),
		DBLatency:       m.DBLatency.Stats(),
		OrdersSubmitted: atomic.LoadUint64(&m.ordersSubmitted),
		OrdersRejected:  atomic.LoadUint64(&m.ordersRejected),
		TicksProcessed:  atomic.LoadUint64(&m.ticksProcessed),
		ErrorsCount:     atomic.LoadUint64(&m.errorsCount),
		APIRequests:     atomic.LoadUint64(&m.apiRequests),
		APIErrors:       atomic.LoadUint64(&m.apiErrors),
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		HeapSys:         memStats.HeapSys,
		Timestamp:       time.Now(),
	}
}

// PerformanceScore folds latency, error rate and memory pressure into a
// 0..100 score used by the health classification.
func (m *SystemMetrics) PerformanceScore() float64 {
	snap := m.GetSnapshot()

	latencyScore := 100.0
	if p95 := snap.GatewayLatency.P95; p95 > 0 {
		switch {
		case p95 > 2000:
			latencyScore = 20
		case p95 > 1000:
			latencyScore = 50
		case p95 > 500:
			latencyScore = 75
		case p95 > 200:
			latencyScore = 90
		}
	}

	errorScore := 100.0
	total := snap.OrdersSubmitted + snap.TicksProcessed
	if total > 0 {
		rate := float64(snap.ErrorsCount) / float64(total)
		switch {
		case rate > 0.5:
			errorScore = 10
		case rate > 0.2:
			errorScore = 40
		case rate > 0.05:
			errorScore = 70
		case rate > 0.01:
			errorScore = 90
		}
	}

	memScore := 100.0
	if snap.HeapSys > 0 {
		used := float64(snap.HeapAlloc) / float64(snap.HeapSys)
		switch {
		case used > 0.95:
			memScore = 30
		case used > 0.85:
			memScore = 60
		case used > 0.70:
			memScore = 85
		}
	}

	return latencyScore*0.4 + errorScore*0.4 + memScore*0.2
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to the histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
