package health

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"tradeops/internal/events"
	"tradeops/internal/monitor"
	"tradeops/internal/session"
)

// Pinger probes gateway reachability.
type Pinger interface {
	Ping(ctx context.Context, accountID string) error
}

// Remedy is a named remediation routine for one issue type.
type Remedy struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config tunes the supervisor.
type Config struct {
	Interval           time.Duration
	RejectionThreshold int
	MaxActionsPerIssue int
	ActionTimeout      time.Duration
}

// Supervisor periodically classifies engine health, files issues, and drives
// healing actions against them. Detection is its job alone; other components
// never file trading issues directly.
type Supervisor struct {
	cfg      Config
	gw       Pinger
	sess     *session.Session
	metrics  *monitor.SystemMetrics
	registry *Registry
	bus      *events.Bus

	mu              sync.RWMutex
	remedies        map[IssueType]Remedy
	lastReport      Report
	rejectionStreak int

	kick   chan chan Report
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSupervisor creates a health supervisor.
func NewSupervisor(cfg Config, gw Pinger, sess *session.Session, metrics *monitor.SystemMetrics, registry *Registry, bus *events.Bus) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.RejectionThreshold <= 0 {
		cfg.RejectionThreshold = 3
	}
	if cfg.MaxActionsPerIssue <= 0 {
		cfg.MaxActionsPerIssue = 5
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	s := &Supervisor{
		cfg:      cfg,
		gw:       gw,
		sess:     sess,
		metrics:  metrics,
		registry: registry,
		bus:      bus,
		remedies: make(map[IssueType]Remedy),
		kick:     make(chan chan Report),
		stopCh:   make(chan struct{}),
	}
	s.remedies[IssuePerformance] = Remedy{
		Name: "release memory",
		Run: func(ctx context.Context) error {
			runtime.GC()
			return nil
		},
	}
	return s
}

// SetRemedy registers the remediation routine for an issue type.
func (s *Supervisor) SetRemedy(typ IssueType, r Remedy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remedies[typ] = r
}

// Registry exposes the issue registry.
func (s *Supervisor) Registry() *Registry { return s.registry }

// LastReport returns the most recent cycle outcome.
func (s *Supervisor) LastReport() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// Start launches the supervision loop and the order-outcome listener.
func (s *Supervisor) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
	if s.bus != nil {
		rejected, unsubR := s.bus.Subscribe(events.EventTradeRejected, 16)
		executed, unsubE := s.bus.Subscribe(events.EventTradeExecuted, 16)
		s.wg.Add(1)
		go s.watchOrderOutcomes(ctx, rejected, executed, unsubR, unsubE)
	}
}

// Stop terminates the loops and waits for them.
func (s *Supervisor) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// ForceCheck runs one supervision cycle immediately and returns its report.
func (s *Supervisor) ForceCheck(ctx context.Context) (Report, error) {
	reply := make(chan Report, 1)
	select {
	case s.kick <- reply:
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case <-s.stopCh:
		return s.LastReport(), nil
	}
	select {
	case rep := <-reply:
		return rep, nil
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

func (s *Supervisor) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCheck(ctx)
		case reply := <-s.kick:
			reply <- s.runCheck(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// watchOrderOutcomes maintains the consecutive-rejection streak from executor
// events. The executor reports outcomes; raising the issue stays here. The
// subscriptions are established in Start so that events published as soon as
// Start returns are never dropped.
func (s *Supervisor) watchOrderOutcomes(ctx context.Context, rejected, executed <-chan any, unsubR, unsubE func()) {
	defer s.wg.Done()
	defer unsubR()
	defer unsubE()

	for {
		select {
		case <-rejected:
			s.mu.Lock()
			s.rejectionStreak++
			s.mu.Unlock()
		case <-executed:
			s.mu.Lock()
			s.rejectionStreak = 0
			s.mu.Unlock()
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) runCheck(ctx context.Context) Report {
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	err := s.gw.Ping(pingCtx, s.sess.AccountID())
	cancel()
	reachable := err == nil

	connState, _ := s.sess.ConnectionState()

	// Detection. The registry dedupes repeats per {type, component}.
	if !reachable {
		sev := SeverityHigh
		if connState == session.ConnTrading {
			sev = SeverityCritical
		}
		s.registry.Report(IssueConnectivity, "gateway", sev, "gateway unreachable: "+err.Error())
	}

	s.mu.RLock()
	streak := s.rejectionStreak
	s.mu.RUnlock()
	if streak >= s.cfg.RejectionThreshold {
		s.registry.Report(IssueTradingAPI, "executor", SeverityHigh,
			"consecutive order rejections reached threshold")
	}

	if s.sess.DeploymentState() == session.DeployFailed {
		s.registry.Report(IssueDeployment, "coordinator", SeverityCritical,
			"account deployment failed")
	}

	score := s.metrics.PerformanceScore()
	if score < 50 {
		s.registry.Report(IssuePerformance, "engine", SeverityMedium,
			"performance score degraded")
	}

	// Resolution is confirmation-driven: an issue closes only when a check
	// observes its condition cleared, never right after a healing action.
	for _, is := range s.registry.Unresolved() {
		if s.conditionCleared(is, reachable, streak, score) {
			s.registry.Resolve(is.ID)
			log.Printf("health: resolved issue %s (%s/%s)", is.ID, is.Type, is.Component)
			continue
		}
		s.heal(ctx, is)
	}

	unresolved := len(s.registry.Unresolved())
	adjusted := score - float64(unresolved)*5
	if adjusted < 0 {
		adjusted = 0
	}

	class := classify(adjusted)
	if !reachable {
		class = ClassDown
	}

	rep := Report{
		Class:            class,
		Score:            adjusted,
		GatewayReachable: reachable,
		UnresolvedIssues: unresolved,
		CheckedAt:        time.Now(),
	}

	s.mu.Lock()
	s.lastReport = rep
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.EventHealthReport, rep)
	}
	return rep
}

func (s *Supervisor) conditionCleared(is Issue, reachable bool, streak int, score float64) bool {
	switch is.Type {
	case IssueConnectivity:
		return reachable
	case IssueTradingAPI:
		return streak == 0
	case IssueDeployment:
		return s.sess.DeploymentState() == session.DeployDeployed
	case IssuePerformance:
		return score >= 50
	default:
		return false
	}
}

// heal runs at most one remediation per open issue per cycle, bounded by the
// per-issue action budget.
func (s *Supervisor) heal(ctx context.Context, is Issue) {
	for _, a := range is.Actions {
		if a.Status == ActionPending || a.Status == ActionRunning {
			return
		}
	}
	if len(is.Actions) >= s.cfg.MaxActionsPerIssue {
		if is.Type == IssueConnectivity {
			// Remediation budget exhausted; surface the fault on the session.
			_ = s.sess.SetConnectionState(session.ConnError, "gateway unreachable, reconnects exhausted")
		}
		return
	}

	s.mu.RLock()
	remedy, ok := s.remedies[is.Type]
	s.mu.RUnlock()
	if !ok {
		return
	}

	actionID := s.registry.AddAction(is.ID, remedy.Name)
	if actionID == "" {
		return
	}
	s.registry.SetActionStatus(is.ID, actionID, ActionRunning, "")
	s.publishAction(events.EventHealingStarted, is.ID, actionID)
	log.Printf("health: healing %s/%s with %q", is.Type, is.Component, remedy.Name)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	err := remedy.Run(runCtx)
	cancel()

	if err != nil {
		s.registry.SetActionStatus(is.ID, actionID, ActionFailed, err.Error())
		log.Printf("health: healing action %q failed: %v", remedy.Name, err)
	} else {
		s.registry.SetActionStatus(is.ID, actionID, ActionCompleted, "ok")
	}
	s.publishAction(events.EventHealingFinished, is.ID, actionID)
}

func (s *Supervisor) publishAction(topic events.Event, issueID, actionID string) {
	if s.bus == nil {
		return
	}
	is, ok := s.registry.Get(issueID)
	if !ok {
		return
	}
	for _, a := range is.Actions {
		if a.ID == actionID {
			s.bus.Publish(topic, a)
			return
		}
	}
}

func classify(score float64) Class {
	switch {
	case score >= 90:
		return ClassExcellent
	case score >= 75:
		return ClassGood
	case score >= 50:
		return ClassWarning
	default:
		return ClassCritical
	}
}
