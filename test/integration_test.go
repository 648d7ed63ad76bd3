package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"tradeops/internal/deploy"
	"tradeops/internal/engine"
	"tradeops/internal/events"
	"tradeops/internal/executor"
	"tradeops/internal/gateway"
	"tradeops/internal/health"
	"tradeops/internal/monitor"
	"tradeops/internal/position"
	"tradeops/internal/session"
	"tradeops/pkg/db"
)

// fakeBrokerGateway simulates the provisioning gateway HTTP surface.
func fakeBrokerGateway(t *testing.T) (*httptest.Server, *int64) {
	t.Helper()

	var stateQueries int64
	mux := http.NewServeMux()

	mux.HandleFunc("POST /accounts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "acc-it-1"})
	})
	mux.HandleFunc("GET /accounts/acc-it-1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&stateQueries, 1)
		state := "DEPLOYING"
		if n >= 3 {
			state = "DEPLOYED"
		}
		json.NewEncoder(w).Encode(map[string]string{"state": state})
	})
	mux.HandleFunc("POST /accounts/acc-it-1/deploy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /accounts/acc-it-1/trade", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"orderId": "ord-it-1"})
	})
	mux.HandleFunc("GET /accounts/acc-it-1/account-information", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]float64{
			"balance": 10000, "equity": 10000, "margin": 50, "freeMargin": 9950,
		})
	})
	mux.HandleFunc("GET /symbols/XAUUSD/current-price", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]float64{"bid": 2374.70, "ask": 2375.00})
	})

	return httptest.NewServer(mux), &stateQueries
}

// TestFullWorkflow drives register, deploy, trade, monitor, and stop against
// a simulated gateway.
func TestFullWorkflow(t *testing.T) {
	log.Println("🧪 Starting Full Workflow Test...")

	ts, _ := fakeBrokerGateway(t)
	defer ts.Close()

	database, err := db.New(filepath.Join(t.TempDir(), "it.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	log.Println("✅ Database initialized")

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()
	sess := session.New("", "Broker-Demo")

	gw := gateway.New(gateway.Config{
		BaseURL:       ts.URL,
		Timeout:       2 * time.Second,
		FallbackPrice: 2374.85,
	}, metrics)

	eng := engine.New(engine.Config{
		Version: "integration",
		Register: gateway.RegisterRequest{
			Login: "845638", Name: "it-account", Server: "Broker-Demo", Platform: "mt5",
		},
		Deploy: deploy.Config{
			Attempts:  5,
			BaseDelay: 10 * time.Millisecond,
			Policy:    deploy.PolicyStrict,
		},
		Executor: executor.Config{
			Interval: 25 * time.Millisecond,
			Symbol:   "XAUUSD",
			Volume:   0.5,
		},
		Position: position.Config{
			Interval: 25 * time.Millisecond,
		},
		Health: health.Config{
			Interval: time.Hour,
		},
	}, gw, sess, bus, metrics, database, func() session.Direction { return session.Buy })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Run(ctx)
	defer eng.Shutdown(context.Background())

	if err := eng.StartLiveTrading(ctx); err != nil {
		t.Fatalf("Failed to start live trading: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		state, _ := sess.ConnectionState()
		if state == session.ConnTrading {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("never reached trading state, state=%s deploy=%s", state, sess.DeploymentState())
		case <-time.After(10 * time.Millisecond):
		}
	}
	log.Println("✅ Live trading reached")

	for sess.TradesExecuted() == 0 {
		select {
		case <-deadline:
			t.Fatal("no trades executed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	log.Println("✅ Trade executed")

	rep, err := eng.ForceHealthCheck(ctx)
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	if !rep.GatewayReachable {
		t.Fatal("expected gateway reachable")
	}
	log.Printf("✅ Health check: class=%s score=%.0f", rep.Class, rep.Score)

	if err := eng.StopLiveTrading(ctx); err != nil {
		t.Fatalf("Failed to stop live trading: %v", err)
	}
	state, _ := sess.ConnectionState()
	if state != session.ConnDisconnected {
		t.Fatalf("expected disconnected, got %s", state)
	}
	if len(sess.OpenTrades()) != 0 {
		t.Fatalf("expected no open trades after stop, got %d", len(sess.OpenTrades()))
	}

	rows, err := database.ListTrades(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list trades: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("expected persisted trades")
	}
	log.Printf("✅ %d trades persisted", len(rows))
}
