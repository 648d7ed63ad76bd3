package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"

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

var (
	// ErrAlreadyTrading is returned when live trading is already running.
	ErrAlreadyTrading = errors.New("engine: live trading already active")

	// ErrNotTrading is returned when no live trading run is active.
	ErrNotTrading = errors.New("engine: live trading not active")
)

// Gateway is everything the engine's components need from the gateway client.
type Gateway interface {
	deploy.Gateway
	executor.Gateway
	position.Gateway
	health.Pinger
}

// Config assembles the component configurations.
type Config struct {
	Version  string
	Register gateway.RegisterRequest
	Deploy   deploy.Config
	Executor executor.Config
	Position position.Config
	Health   health.Config
}

// Status is the engine's observable state for the API and websocket.
type Status struct {
	Version            string           `json:"version"`
	InstanceID         string           `json:"instanceId"`
	TradingActive      bool             `json:"tradingActive"`
	DeploymentProgress float64          `json:"deploymentProgress"`
	DeploymentStep     string           `json:"deploymentStep"`
	Session            session.Snapshot `json:"session"`
	Health             health.Report    `json:"health"`
	StartedAt          time.Time        `json:"startedAt"`
}

// Engine owns the component lifecycles. All tickers hang off the context
// passed to Run; StartLiveTrading derives a cancellable sub-context so a stop
// tears down only the trading loops.
type Engine struct {
	cfg        Config
	gw         Gateway
	sess       *session.Session
	bus        *events.Bus
	metrics    *monitor.SystemMetrics
	audit      *db.Database
	registry   *health.Registry
	supervisor *health.Supervisor
	signal     executor.SignalFunc

	instanceID string
	startedAt  time.Time
	wg         sync.WaitGroup
	stopCh     chan struct{}
	stopOnce   sync.Once

	mu            sync.Mutex
	baseCtx       context.Context
	active        bool
	tradingCancel context.CancelFunc
	coordinator   *deploy.Coordinator
	executor      *executor.Executor
	monitor       *position.Monitor
}

// New wires the engine. audit may be nil (no persistence); signal may be nil
// (random direction).
func New(cfg Config, gw Gateway, sess *session.Session, bus *events.Bus, metrics *monitor.SystemMetrics, audit *db.Database, signal executor.SignalFunc) *Engine {
	registry := health.NewRegistry(bus)
	e := &Engine{
		cfg:      cfg,
		gw:       gw,
		sess:     sess,
		bus:      bus,
		metrics:  metrics,
		audit:    audit,
		registry: registry,
		signal:   signal,
		stopCh:   make(chan struct{}),
	}

	e.instanceID = "unknown"
	if id, err := machineid.ProtectedID("tradeops"); err == nil {
		e.instanceID = id
	}

	e.supervisor = health.NewSupervisor(cfg.Health, gw, sess, metrics, registry, bus)
	e.supervisor.SetRemedy(health.IssueConnectivity, health.Remedy{
		Name: "reconnect gateway",
		Run:  e.reconnectRemedy,
	})
	e.supervisor.SetRemedy(health.IssueTradingAPI, health.Remedy{
		Name: "probe trading endpoint",
		Run:  e.probeRemedy,
	})
	e.supervisor.SetRemedy(health.IssueDeployment, health.Remedy{
		Name: "request redeploy",
		Run:  e.redeployRemedy,
	})

	e.coordinator = deploy.New(cfg.Deploy, gw, sess, bus, registry, audit)
	return e
}

// Run starts the always-on supervision loop. Trading loops start on demand.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.baseCtx = ctx
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.supervisor.Start(ctx)
	e.startAuditWriter(ctx)
	log.Printf("engine: running, version=%s instance=%s", e.cfg.Version, e.instanceID)
}

// Shutdown stops live trading if active, then the supervisor.
func (e *Engine) Shutdown(ctx context.Context) {
	if err := e.StopLiveTrading(ctx); err != nil && !errors.Is(err, ErrNotTrading) {
		log.Printf("engine: stop trading during shutdown: %v", err)
	}
	e.supervisor.Stop()
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
	log.Printf("engine: stopped")
}

// StartLiveTrading deploys the account and launches the trade and position
// loops. The call returns once the run is accepted; deployment proceeds in
// the background and is observable through Status.
func (e *Engine) StartLiveTrading(ctx context.Context) error {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return ErrAlreadyTrading
	}
	if e.baseCtx == nil {
		e.mu.Unlock()
		return errors.New("engine: not running")
	}
	tctx, cancel := context.WithCancel(e.baseCtx)
	e.active = true
	e.tradingCancel = cancel
	coord := deploy.New(e.cfg.Deploy, e.gw, e.sess, e.bus, e.registry, e.audit)
	e.coordinator = coord
	e.mu.Unlock()

	_ = e.sess.SetConnectionState(session.ConnConnecting, "")
	e.publishStatus()

	go e.runTrading(tctx, coord)
	return nil
}

func (e *Engine) runTrading(ctx context.Context, coord *deploy.Coordinator) {
	if err := coord.Run(ctx, e.cfg.Register); err != nil {
		log.Printf("engine: deployment did not complete: %v", err)
		e.mu.Lock()
		e.active = false
		e.mu.Unlock()
		e.publishStatus()
		return
	}
	ex := executor.New(e.cfg.Executor, e.gw, e.sess, e.bus, e.metrics, e.audit, e.signal)
	mon := position.New(e.cfg.Position, e.gw, e.sess, e.bus, e.audit)

	// Session transitions happen under the engine lock and only while the
	// run is still active, so a concurrent stop can never be overwritten
	// with a Connected or Trading state it has already torn down.
	e.mu.Lock()
	if ctx.Err() != nil || !e.active {
		e.mu.Unlock()
		return
	}
	_ = e.sess.SetConnectionState(session.ConnConnected, "")
	e.executor = ex
	e.monitor = mon
	e.mu.Unlock()

	ex.Start(ctx)
	mon.Start(ctx)

	e.mu.Lock()
	if ctx.Err() != nil || !e.active {
		e.mu.Unlock()
		return
	}
	err := e.sess.SetConnectionState(session.ConnTrading, "")
	e.mu.Unlock()
	if err != nil {
		log.Printf("engine: cannot enter trading state: %v", err)
	} else {
		log.Printf("engine: live trading started")
	}
	e.publishStatus()
}

// StopLiveTrading cancels the trading loops, closes open trades, and
// disconnects the session. The deployed account stays deployed.
func (e *Engine) StopLiveTrading(ctx context.Context) error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return ErrNotTrading
	}
	e.active = false
	cancel := e.tradingCancel
	ex := e.executor
	mon := e.monitor
	e.tradingCancel = nil
	e.executor = nil
	e.monitor = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ex != nil {
		ex.Stop()
	}
	if mon != nil {
		mon.Stop()
		closed := mon.CloseAll(ctx)
		if len(closed) > 0 {
			log.Printf("engine: closed %d open trades", len(closed))
		}
	}

	_ = e.sess.SetConnectionState(session.ConnDisconnected, "")
	e.publishStatus()
	log.Printf("engine: live trading stopped")
	return nil
}

// ForceHealthCheck runs one supervision cycle now.
func (e *Engine) ForceHealthCheck(ctx context.Context) (health.Report, error) {
	return e.supervisor.ForceCheck(ctx)
}

// ClearResolvedIssues drops resolved issues from the registry.
func (e *Engine) ClearResolvedIssues(ctx context.Context) (int, error) {
	n := e.registry.ClearResolved()
	log.Printf("engine: cleared %d resolved issues", n)
	return n, nil
}

// CloseAllTrades closes every open trade at the current quote.
func (e *Engine) CloseAllTrades(ctx context.Context) ([]session.Trade, error) {
	e.mu.Lock()
	mon := e.monitor
	e.mu.Unlock()
	if mon == nil {
		mon = position.New(e.cfg.Position, e.gw, e.sess, e.bus, e.audit)
	}
	return mon.CloseAll(ctx), nil
}

// Status snapshots the whole engine.
func (e *Engine) Status(ctx context.Context) Status {
	e.mu.Lock()
	coord := e.coordinator
	active := e.active
	started := e.startedAt
	e.mu.Unlock()

	progress, step := coord.Progress()
	return Status{
		Version:            e.cfg.Version,
		InstanceID:         e.instanceID,
		TradingActive:      active,
		DeploymentProgress: progress,
		DeploymentStep:     step,
		Session:            e.sess.Snapshot(),
		Health:             e.supervisor.LastReport(),
		StartedAt:          started,
	}
}

// Trades returns every trade the session has seen.
func (e *Engine) Trades(ctx context.Context) []session.Trade {
	return e.sess.AllTrades()
}

// TradeHistory reads the persisted trade log, newest first.
func (e *Engine) TradeHistory(ctx context.Context, limit int) ([]db.TradeRow, error) {
	if e.audit == nil {
		return nil, nil
	}
	return e.audit.ListTrades(ctx, limit)
}

// Issues returns all issues, resolved included.
func (e *Engine) Issues(ctx context.Context) []health.Issue {
	return e.registry.All()
}

// Metrics returns the performance counters snapshot.
func (e *Engine) Metrics(ctx context.Context) monitor.MetricsSnapshot {
	return e.metrics.GetSnapshot()
}

func (e *Engine) publishStatus() {
	if e.bus != nil {
		e.bus.Publish(events.EventStatusChange, e.Status(context.Background()))
	}
}

// reconnectRemedy probes the gateway and, once it answers again, restores the
// trading state an outage knocked into Error.
func (e *Engine) reconnectRemedy(ctx context.Context) error {
	if err := e.gw.Ping(ctx, e.sess.AccountID()); err != nil {
		return err
	}
	state, _ := e.sess.ConnectionState()
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if state == session.ConnError && active && e.sess.DeploymentState() == session.DeployDeployed {
		return e.sess.SetConnectionState(session.ConnTrading, "")
	}
	return nil
}

// probeRemedy exercises the price endpoint after repeated order rejections.
func (e *Engine) probeRemedy(ctx context.Context) error {
	_, err := e.gw.CurrentPrice(ctx, e.cfg.Executor.Symbol)
	return err
}

// redeployRemedy re-kicks the deployment of a failed account.
func (e *Engine) redeployRemedy(ctx context.Context) error {
	return e.gw.Deploy(ctx, e.sess.AccountID())
}
