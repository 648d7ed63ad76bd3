package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"tradeops/internal/engine"
	"tradeops/internal/events"
	"tradeops/internal/health"
	"tradeops/internal/monitor"
	"tradeops/internal/session"
	"tradeops/pkg/db"
)

type noopEngine struct {
	startErr error
	stopErr  error
}

func (n *noopEngine) StartLiveTrading(context.Context) error { return n.startErr }
func (n *noopEngine) StopLiveTrading(context.Context) error  { return n.stopErr }
func (n *noopEngine) ForceHealthCheck(context.Context) (health.Report, error) {
	return health.Report{Class: health.ClassGood, Score: 80}, nil
}
func (n *noopEngine) ClearResolvedIssues(context.Context) (int, error) { return 2, nil }
func (n *noopEngine) CloseAllTrades(context.Context) ([]session.Trade, error) {
	return nil, nil
}
func (n *noopEngine) Status(context.Context) engine.Status {
	return engine.Status{Version: "test"}
}
func (n *noopEngine) Trades(context.Context) []session.Trade { return nil }
func (n *noopEngine) TradeHistory(context.Context, int) ([]db.TradeRow, error) {
	return nil, nil
}
func (n *noopEngine) Issues(context.Context) []health.Issue { return nil }
func (n *noopEngine) Metrics(context.Context) monitor.MetricsSnapshot {
	return monitor.MetricsSnapshot{}
}

func newTestAPIServer(t *testing.T, svc Service) (*httptest.Server, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	server := NewServer(svc, bus, metrics, "test-secret", OperatorCredentials{
		User: "operator",
		Pass: "test-pass",
	})

	httpServer := httptest.NewServer(server.Router)
	cleanup := func() { httpServer.Close() }
	return httpServer, cleanup
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func login(t *testing.T, client *http.Client, baseURL string) string {
	t.Helper()
	var loginResp struct {
		Token string `json:"token"`
	}
	status := doJSONRequest(t, client, http.MethodPost, baseURL+"/api/auth/login", "", map[string]string{
		"username": "operator",
		"password": "test-pass",
	}, &loginResp)
	if status != http.StatusOK || loginResp.Token == "" {
		t.Fatalf("login failed status=%d resp=%+v", status, loginResp)
	}
	return loginResp.Token
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &noopEngine{})
	defer cleanup()

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"username": "operator",
		"password": "wrong",
	}, &resp)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if resp.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected code INVALID_CREDENTIALS, got %s", resp.Code)
	}
}

func TestControlEndpointsRequireAuth(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &noopEngine{})
	defer cleanup()

	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/api/trading/start", "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
}

func TestStatusIsPublic(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &noopEngine{})
	defer cleanup()

	var resp struct {
		Version string `json:"version"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/status", "", nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.Version != "test" {
		t.Fatalf("expected version test, got %q", resp.Version)
	}
}

func TestStartTradingConflict(t *testing.T) {
	svc := &noopEngine{startErr: engine.ErrAlreadyTrading}
	ts, cleanup := newTestAPIServer(t, svc)
	defer cleanup()

	client := ts.Client()
	token := login(t, client, ts.URL)

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/trading/start", token, nil, &resp)
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
	if resp.Code != "ALREADY_TRADING" {
		t.Fatalf("expected code ALREADY_TRADING, got %s", resp.Code)
	}
}

func TestStartAndStopTrading(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &noopEngine{})
	defer cleanup()

	client := ts.Client()
	token := login(t, client, ts.URL)

	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/trading/start", token, nil, nil)
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/trading/stop", token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestForceHealthCheck(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &noopEngine{})
	defer cleanup()

	client := ts.Client()
	token := login(t, client, ts.URL)

	var resp struct {
		Class string  `json:"class"`
		Score float64 `json:"score"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/health/check", token, nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.Class != string(health.ClassGood) {
		t.Fatalf("expected class GOOD, got %s", resp.Class)
	}
}

func TestClearResolvedIssues(t *testing.T) {
	ts, cleanup := newTestAPIServer(t, &noopEngine{})
	defer cleanup()

	client := ts.Client()
	token := login(t, client, ts.URL)

	var resp struct {
		Cleared int `json:"cleared"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/issues/clear-resolved", token, nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.Cleared != 2 {
		t.Fatalf("expected 2 cleared, got %d", resp.Cleared)
	}
}
