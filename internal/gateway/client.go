package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tradeops/internal/monitor"
)

// Config holds gateway connection settings. The auth token comes from
// configuration, never from a source literal.
type Config struct {
	BaseURL       string
	AuthToken     string
	Timeout       time.Duration
	FallbackPrice float64
	// RequestsPerSecond paces outbound calls. Zero disables pacing.
	RequestsPerSecond float64
}

// Client is a stateless HTTP wrapper over the provisioning gateway. Each call
// is bounded by the configured timeout and classifies its failure; retry
// policy belongs to the callers.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *monitor.SystemMetrics
}

// New creates a gateway client.
func New(cfg Config, metrics *monitor.SystemMetrics) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}
	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		metrics:    metrics,
	}
}

// RegisterAccount submits the account for provisioning. A 409 means the
// account already exists and counts as success.
func (c *Client) RegisterAccount(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/accounts", req)
	if err != nil {
		return RegisterResult{}, classify("register", err)
	}

	switch status {
	case http.StatusCreated, http.StatusOK:
		var resp struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return RegisterResult{}, &Error{Op: "register", Kind: KindDecode, Err: err}
		}
		return RegisterResult{AccountID: resp.ID}, nil
	case http.StatusConflict:
		var resp struct {
			ID string `json:"id"`
		}
		// Conflict bodies carry the existing id when the gateway knows it.
		_ = json.Unmarshal(body, &resp)
		return RegisterResult{AccountID: resp.ID, AlreadyExists: true}, nil
	default:
		return RegisterResult{}, &Error{Op: "register", Kind: KindRejected, Status: status, Body: truncate(body)}
	}
}

// QueryDeploymentState reads the provisioning state of an account. A network
// failure reports StateUnknown, never StateDeployed.
func (c *Client) QueryDeploymentState(ctx context.Context, accountID string) (DeployState, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/accounts/"+accountID, nil)
	if err != nil {
		return StateUnknown, classify("query-state", err)
	}
	if status != http.StatusOK {
		return StateUnknown, &Error{Op: "query-state", Kind: KindRejected, Status: status, Body: truncate(body)}
	}

	var resp struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return StateUnknown, &Error{Op: "query-state", Kind: KindDecode, Err: err}
	}

	switch strings.ToUpper(resp.State) {
	case "DEPLOYED":
		return StateDeployed, nil
	case "DEPLOYING":
		return StateDeploying, nil
	case "UNDEPLOYED":
		return StateUndeployed, nil
	case "FAILED":
		return StateFailed, nil
	default:
		return StateUnknown, nil
	}
}

// Deploy asks the gateway to start deploying a registered account.
func (c *Client) Deploy(ctx context.Context, accountID string) error {
	status, body, err := c.do(ctx, http.MethodPost, "/accounts/"+accountID+"/deploy", nil)
	if err != nil {
		return classify("deploy", err)
	}
	if status != http.StatusOK && status != http.StatusNoContent && status != http.StatusAccepted {
		return &Error{Op: "deploy", Kind: KindRejected, Status: status, Body: truncate(body)}
	}
	return nil
}

// SubmitOrder places a market order. Failures are classified so the executor
// can tell a broker rejection from an unreachable gateway.
func (c *Client) SubmitOrder(ctx context.Context, accountID string, req OrderRequest) (OrderResult, error) {
	timer := c.timer(c.metricsOrderHistogram())
	status, body, err := c.do(ctx, http.MethodPost, "/accounts/"+accountID+"/trade", req)
	timer()
	if err != nil {
		return OrderResult{}, classify("submit-order", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return OrderResult{}, &Error{Op: "submit-order", Kind: KindRejected, Status: status, Body: truncate(body)}
	}

	var resp OrderResult
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderResult{}, &Error{Op: "submit-order", Kind: KindDecode, Err: err}
	}
	if resp.OrderID == "" {
		return OrderResult{}, &Error{Op: "submit-order", Kind: KindDecode, Err: fmt.Errorf("response missing orderId")}
	}
	return resp, nil
}

// FetchAccountSnapshot reads the account figures.
func (c *Client) FetchAccountSnapshot(ctx context.Context, accountID string) (AccountSnapshot, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/accounts/"+accountID+"/account-information", nil)
	if err != nil {
		return AccountSnapshot{}, classify("account-info", err)
	}
	if status != http.StatusOK {
		return AccountSnapshot{}, &Error{Op: "account-info", Kind: KindRejected, Status: status, Body: truncate(body)}
	}

	var snap AccountSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return AccountSnapshot{}, &Error{Op: "account-info", Kind: KindDecode, Err: err}
	}
	return snap, nil
}

// CurrentPrice returns the mid price for a symbol. When the gateway cannot
// serve a quote the configured fallback price is returned alongside the
// error, so price reads never stall a caller's cycle.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/symbols/"+symbol+"/current-price", nil)
	if err != nil {
		return c.cfg.FallbackPrice, classify("current-price", err)
	}
	if status != http.StatusOK {
		return c.cfg.FallbackPrice, &Error{Op: "current-price", Kind: KindRejected, Status: status, Body: truncate(body)}
	}

	var price Price
	if err := json.Unmarshal(body, &price); err != nil {
		return c.cfg.FallbackPrice, &Error{Op: "current-price", Kind: KindDecode, Err: err}
	}
	if price.Bid <= 0 && price.Ask <= 0 {
		return c.cfg.FallbackPrice, nil
	}
	return price.Mid(), nil
}

// Ping probes gateway reachability. Any HTTP answer, including a 4xx, proves
// the gateway is up.
func (c *Client) Ping(ctx context.Context, accountID string) error {
	_, _, err := c.do(ctx, http.MethodGet, "/accounts/"+accountID, nil)
	if err != nil {
		return classify("ping", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.GatewayLatency.RecordDuration(time.Since(start))
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncrementErrors()
		}
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *Client) metricsOrderHistogram() *monitor.LatencyHistogram {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.OrderLatency
}

func (c *Client) timer(h *monitor.LatencyHistogram) func() {
	if h == nil {
		return func() {}
	}
	t := monitor.NewTimer(h)
	return func() { t.Stop() }
}

func truncate(body []byte) string {
	const max = 256
	s := string(body)
	if len(s) > max {
		return s[:max]
	}
	return s
}
