package deploy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"tradeops/internal/events"
	"tradeops/internal/gateway"
	"tradeops/internal/health"
	"tradeops/internal/session"
	"tradeops/pkg/db"
)

var (
	// ErrDeployFailed is returned when the gateway reports a failed
	// deployment or the strict policy exhausts the poll budget.
	ErrDeployFailed = errors.New("deploy: deployment failed")

	// ErrDeployTimeout is returned under the strict policy when the poll
	// budget runs out without a deployed confirmation.
	ErrDeployTimeout = errors.New("deploy: poll budget exhausted")
)

// Policy decides what happens when the poll budget runs out.
type Policy string

const (
	// PolicyLenient assumes the account is ready and files a warning issue.
	PolicyLenient Policy = "lenient"
	// PolicyStrict marks the deployment failed.
	PolicyStrict Policy = "strict"
)

// Progress checkpoints. Polling spreads the remaining fraction across
// attempts, so progress never moves backwards.
const (
	progressRegistered   = 0.10
	progressValidated    = 0.30
	progressProvisioning = 0.60
	progressPolling      = 0.80
)

// Gateway is the slice of the gateway client the coordinator needs.
type Gateway interface {
	RegisterAccount(ctx context.Context, req gateway.RegisterRequest) (gateway.RegisterResult, error)
	QueryDeploymentState(ctx context.Context, accountID string) (gateway.DeployState, error)
	Deploy(ctx context.Context, accountID string) error
}

// Config tunes the deployment run.
type Config struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	Policy    Policy
}

// Coordinator drives an account from unregistered to deployed. A run is
// linear: register, validate, optionally kick a deploy, then poll a bounded
// number of times.
type Coordinator struct {
	cfg      Config
	gw       Gateway
	sess     *session.Session
	bus      *events.Bus
	registry *health.Registry
	audit    *db.Database

	mu       sync.RWMutex
	progress float64
	step     string
}

// New creates a coordinator. registry and audit may be nil.
func New(cfg Config, gw Gateway, sess *session.Session, bus *events.Bus, registry *health.Registry, audit *db.Database) *Coordinator {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 10
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 3 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 15 * time.Second
	}
	if cfg.Factor <= 0 {
		cfg.Factor = 1.5
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyLenient
	}
	return &Coordinator{
		cfg:      cfg,
		gw:       gw,
		sess:     sess,
		bus:      bus,
		registry: registry,
		audit:    audit,
	}
}

// Progress returns the current fraction in [0,1] and the step label.
func (c *Coordinator) Progress() (float64, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress, c.step
}

// Run executes the deployment sequence. Registration failure is fatal; poll
// network errors burn attempts but do not abort the run.
func (c *Coordinator) Run(ctx context.Context, req gateway.RegisterRequest) error {
	c.setProgress(0, "starting deployment")

	res, err := c.gw.RegisterAccount(ctx, req)
	if err != nil {
		reason := fmt.Sprintf("account registration failed: %v", err)
		_ = c.sess.SetConnectionState(session.ConnError, reason)
		return fmt.Errorf("register account: %w", err)
	}
	if res.AccountID != "" {
		c.sess.SetAccountID(res.AccountID)
	}
	c.sess.SetDeploymentState(session.DeployRegistered)
	if res.AlreadyExists {
		log.Printf("deploy: account already registered, id=%s", res.AccountID)
	} else {
		log.Printf("deploy: account registered, id=%s", res.AccountID)
	}
	c.setProgress(progressRegistered, "account registered")

	accountID := c.sess.AccountID()

	// Pre-poll state read doubles as credential validation. A network fault
	// here is not fatal; the poll loop gets its own budget.
	initial, err := c.gw.QueryDeploymentState(ctx, accountID)
	if err != nil && gateway.KindOf(err) == gateway.KindRejected {
		reason := fmt.Sprintf("account validation failed: %v", err)
		_ = c.sess.SetConnectionState(session.ConnError, reason)
		return fmt.Errorf("validate account: %w", err)
	}
	c.setProgress(progressValidated, "account validated")

	if initial == gateway.StateUndeployed {
		// Kick the deploy exactly once per run.
		if err := c.gw.Deploy(ctx, accountID); err != nil {
			log.Printf("deploy: deploy request failed, polling anyway: %v", err)
		} else {
			log.Printf("deploy: deployment requested for %s", accountID)
		}
	}
	c.sess.SetDeploymentState(session.DeployDeploying)
	c.setProgress(progressProvisioning, "provisioning requested")
	c.setProgress(progressPolling, "establishing broker link")

	return c.poll(ctx, accountID)
}

func (c *Coordinator) poll(ctx context.Context, accountID string) error {
	delay := &backoff.Backoff{
		Min:    c.cfg.BaseDelay,
		Max:    c.cfg.MaxDelay,
		Factor: c.cfg.Factor,
		Jitter: false,
	}

	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		state, err := c.gw.QueryDeploymentState(ctx, accountID)
		c.recordAttempt(ctx, accountID, attempt, state, err)

		frac := progressPolling + (1-progressPolling)*float64(attempt)/float64(c.cfg.Attempts)
		c.setProgress(frac, fmt.Sprintf("waiting for broker (attempt %d/%d)", attempt, c.cfg.Attempts))

		switch {
		case err != nil:
			// Unknown state: burn the attempt, keep polling.
			log.Printf("deploy: poll attempt %d/%d failed: %v", attempt, c.cfg.Attempts, err)
		case state == gateway.StateDeployed:
			return c.finish("broker link established")
		case state == gateway.StateFailed:
			c.sess.SetDeploymentState(session.DeployFailed)
			c.setProgress(frac, "deployment failed")
			c.publishFinished(false)
			return ErrDeployFailed
		default:
			log.Printf("deploy: poll attempt %d/%d state=%s", attempt, c.cfg.Attempts, state)
		}

		if attempt == c.cfg.Attempts {
			break
		}
		select {
		case <-time.After(delay.Duration()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if c.cfg.Policy == PolicyStrict {
		c.sess.SetDeploymentState(session.DeployFailed)
		c.publishFinished(false)
		return ErrDeployTimeout
	}

	// Lenient: assume ready, but leave a trace an operator can see.
	log.Printf("deploy: poll budget exhausted, assuming account %s is ready", accountID)
	if c.registry != nil {
		c.registry.Report(health.IssueDeployment, "coordinator", health.SeverityMedium,
			"deployment confirmation timed out; assumed ready")
	}
	return c.finish("assumed ready after poll budget")
}

func (c *Coordinator) finish(step string) error {
	c.sess.SetDeploymentState(session.DeployDeployed)
	c.setProgress(1.0, step)
	c.publishFinished(true)
	return nil
}

func (c *Coordinator) setProgress(frac float64, step string) {
	c.mu.Lock()
	c.progress = frac
	c.step = step
	c.mu.Unlock()
	if c.bus != nil {
		c.bus.Publish(events.EventDeployProgress, events.DeployProgress{Progress: frac, Step: step})
	}
}

func (c *Coordinator) publishFinished(ok bool) {
	if c.bus != nil {
		c.bus.Publish(events.EventDeployFinished, ok)
	}
}

func (c *Coordinator) recordAttempt(ctx context.Context, accountID string, attempt int, state gateway.DeployState, err error) {
	if c.audit == nil {
		return
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	if dbErr := c.audit.RecordDeploymentAttempt(ctx, accountID, attempt, string(state), detail); dbErr != nil {
		log.Printf("deploy: audit write failed: %v", dbErr)
	}
}
