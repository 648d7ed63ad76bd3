package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"tradeops/internal/engine"
	"tradeops/internal/events"
	"tradeops/internal/health"
	"tradeops/internal/monitor"
	"tradeops/internal/session"
	"tradeops/pkg/db"
)

// Service is the engine surface the API exposes.
type Service interface {
	StartLiveTrading(ctx context.Context) error
	StopLiveTrading(ctx context.Context) error
	ForceHealthCheck(ctx context.Context) (health.Report, error)
	ClearResolvedIssues(ctx context.Context) (int, error)
	CloseAllTrades(ctx context.Context) ([]session.Trade, error)
	Status(ctx context.Context) engine.Status
	Trades(ctx context.Context) []session.Trade
	TradeHistory(ctx context.Context, limit int) ([]db.TradeRow, error)
	Issues(ctx context.Context) []health.Issue
	Metrics(ctx context.Context) monitor.MetricsSnapshot
}

// OperatorCredentials are the configured login for control endpoints.
type OperatorCredentials struct {
	User string
	Pass string
}

// Server wires HTTP endpoints around the engine.
type Server struct {
	Router    *gin.Engine
	Engine    Service
	Bus       *events.Bus
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	Operator  OperatorCredentials
}

// NewServer builds the router with the full middleware stack.
func NewServer(svc Service, bus *events.Bus, metrics *monitor.SystemMetrics, jwtSecret string, operator OperatorCredentials) *Server {
	r := gin.New()

	// Recovery sits outermost; CORS runs last so even rejected requests
	// carry the headers.
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Engine:    svc,
		Bus:       bus,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		Operator:  operator,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/metrics", s.getMetrics)

		auth := api.Group("/auth")
		{
			auth.POST("/login", s.login)
		}

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/trades", s.getTrades)
			protected.GET("/trades/history", s.getTradeHistory)
			protected.GET("/issues", s.getIssues)

			protected.POST("/trading/start", s.startTrading)
			protected.POST("/trading/stop", s.stopTrading)
			protected.POST("/trading/close-all", s.closeAllTrades)
			protected.POST("/health/check", s.forceHealthCheck)
			protected.POST("/issues/clear-resolved", s.clearResolvedIssues)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
