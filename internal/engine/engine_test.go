package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeops/internal/deploy"
	"tradeops/internal/events"
	"tradeops/internal/executor"
	"tradeops/internal/gateway"
	"tradeops/internal/health"
	"tradeops/internal/monitor"
	"tradeops/internal/position"
	"tradeops/internal/session"
	"tradeops/pkg/db"
)

type fakeGateway struct {
	mu     sync.Mutex
	orders int
}

func (f *fakeGateway) RegisterAccount(ctx context.Context, req gateway.RegisterRequest) (gateway.RegisterResult, error) {
	return gateway.RegisterResult{AccountID: "acc-1"}, nil
}

func (f *fakeGateway) QueryDeploymentState(ctx context.Context, accountID string) (gateway.DeployState, error) {
	return gateway.StateDeployed, nil
}

func (f *fakeGateway) Deploy(ctx context.Context, accountID string) error { return nil }

func (f *fakeGateway) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return 2374.85, nil
}

func (f *fakeGateway) SubmitOrder(ctx context.Context, accountID string, req gateway.OrderRequest) (gateway.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders++
	return gateway.OrderResult{OrderID: "ord-1"}, nil
}

func (f *fakeGateway) FetchAccountSnapshot(ctx context.Context, accountID string) (gateway.AccountSnapshot, error) {
	return gateway.AccountSnapshot{Balance: 10000, FreeMargin: 10000}, nil
}

func (f *fakeGateway) Ping(ctx context.Context, accountID string) error { return nil }

func newTestEngine(t *testing.T) (*Engine, *session.Session, context.CancelFunc) {
	t.Helper()
	sess := session.New("", "Broker-Demo")
	eng := New(Config{
		Version: "test",
		Deploy: deploy.Config{
			Attempts:  3,
			BaseDelay: time.Millisecond,
			Policy:    deploy.PolicyStrict,
		},
		Executor: executor.Config{
			Interval: 10 * time.Millisecond,
			Symbol:   "XAUUSD",
			Volume:   0.5,
		},
		Position: position.Config{
			Interval: 10 * time.Millisecond,
		},
		Health: health.Config{
			Interval: time.Hour,
		},
	}, &fakeGateway{}, sess, events.NewBus(), monitor.NewSystemMetrics(), nil, func() session.Direction { return session.Buy })

	ctx, cancel := context.WithCancel(context.Background())
	eng.Run(ctx)
	t.Cleanup(func() {
		eng.Shutdown(context.Background())
		cancel()
	})
	return eng, sess, cancel
}

func TestStartLiveTradingReachesTradingState(t *testing.T) {
	eng, sess, _ := newTestEngine(t)

	require.NoError(t, eng.StartLiveTrading(context.Background()))

	require.Eventually(t, func() bool {
		state, _ := sess.ConnectionState()
		return state == session.ConnTrading
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, session.DeployDeployed, sess.DeploymentState())
	require.Eventually(t, func() bool {
		return sess.TradesExecuted() > 0
	}, 2*time.Second, 5*time.Millisecond)

	status := eng.Status(context.Background())
	assert.True(t, status.TradingActive)
	assert.InDelta(t, 1.0, status.DeploymentProgress, 1e-9)
}

func TestStartTwiceIsRejected(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	require.NoError(t, eng.StartLiveTrading(context.Background()))
	assert.ErrorIs(t, eng.StartLiveTrading(context.Background()), ErrAlreadyTrading)
}

func TestStopLiveTradingDisconnectsAndClosesTrades(t *testing.T) {
	eng, sess, _ := newTestEngine(t)

	require.NoError(t, eng.StartLiveTrading(context.Background()))
	require.Eventually(t, func() bool {
		return sess.TradesExecuted() > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, eng.StopLiveTrading(context.Background()))

	state, _ := sess.ConnectionState()
	assert.Equal(t, session.ConnDisconnected, state)
	assert.Empty(t, sess.OpenTrades())
	// The deployed account survives a trading stop.
	assert.Equal(t, session.DeployDeployed, sess.DeploymentState())

	assert.ErrorIs(t, eng.StopLiveTrading(context.Background()), ErrNotTrading)
}

func TestStopDuringStartupLeavesSessionDisconnected(t *testing.T) {
	eng, sess, _ := newTestEngine(t)

	// Stopping right after a start races the startup goroutine's final
	// transition into Trading; whichever side wins, the session must settle
	// Disconnected once the stop returns.
	for i := 0; i < 25; i++ {
		require.NoError(t, eng.StartLiveTrading(context.Background()))
		require.NoError(t, eng.StopLiveTrading(context.Background()))

		time.Sleep(5 * time.Millisecond)
		state, _ := sess.ConnectionState()
		require.Equal(t, session.ConnDisconnected, state, "iteration %d", i)
	}
}

func TestForceHealthCheckReportsHealthy(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	rep, err := eng.ForceHealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.GatewayReachable)
	assert.NotEqual(t, health.ClassDown, rep.Class)
}

func TestAuditWriterPersistsIssues(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.ApplyMigrations(database))

	sess := session.New("", "Broker-Demo")
	eng := New(Config{
		Version: "test",
		Health:  health.Config{Interval: time.Hour},
	}, &fakeGateway{}, sess, events.NewBus(), monitor.NewSystemMetrics(), database, nil)

	ctx, cancel := context.WithCancel(context.Background())
	eng.Run(ctx)
	t.Cleanup(func() {
		eng.Shutdown(context.Background())
		cancel()
	})

	is := eng.registry.Report(health.IssueConnectivity, "gateway", health.SeverityHigh, "unreachable")

	require.Eventually(t, func() bool {
		var count int
		if err := database.DB.QueryRow(
			"SELECT COUNT(*) FROM issues WHERE id = ?", is.ID).Scan(&count); err != nil {
			return false
		}
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClearResolvedIssues(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	is := eng.registry.Report(health.IssueConnectivity, "gateway", health.SeverityHigh, "blip")
	eng.registry.Resolve(is.ID)
	eng.registry.Report(health.IssueTradingAPI, "executor", health.SeverityHigh, "rejections")

	n, err := eng.ClearResolvedIssues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, eng.Issues(context.Background()), 1)
}
