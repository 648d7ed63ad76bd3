package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeops/internal/api"
	"tradeops/internal/deploy"
	"tradeops/internal/engine"
	"tradeops/internal/events"
	"tradeops/internal/executor"
	"tradeops/internal/gateway"
	"tradeops/internal/health"
	"tradeops/internal/monitor"
	"tradeops/internal/position"
	"tradeops/internal/session"
	"tradeops/pkg/config"
	"tradeops/pkg/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		log.Fatalf("profile load failed: %v", err)
	}
	log.Printf("starting, port=%s symbol=%s", cfg.Port, profile.Symbol)

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	sysMetrics := monitor.NewSystemMetrics()

	gw := gateway.New(gateway.Config{
		BaseURL:           cfg.GatewayBaseURL,
		AuthToken:         cfg.GatewayAuthToken,
		Timeout:           cfg.GatewayTimeout,
		FallbackPrice:     profile.FallbackPrice,
		RequestsPerSecond: cfg.GatewayRPS,
	}, sysMetrics)

	sess := session.New("", cfg.BrokerServer)

	eng := engine.New(engine.Config{
		Version: buildVersion,
		Register: gateway.RegisterRequest{
			Login:    cfg.AccountLogin,
			Password: cfg.AccountPassword,
			Name:     cfg.AccountName,
			Server:   cfg.BrokerServer,
			Platform: cfg.Platform,
			Magic:    cfg.Magic,
		},
		Deploy: deploy.Config{
			Attempts:  cfg.DeployAttempts,
			BaseDelay: cfg.DeployBaseDelay,
			Policy:    deploy.Policy(cfg.DeployPolicy),
		},
		Executor: executor.Config{
			Interval:         profile.TradeInterval,
			Symbol:           profile.Symbol,
			Volume:           profile.Volume,
			StopLossOffset:   profile.StopLossOffset,
			TakeProfitOffset: profile.TakeProfitOffset,
			Comment:          profile.Comment,
			Magic:            cfg.Magic,
		},
		Position: position.Config{
			Interval:    profile.MonitorInterval,
			Window:      profile.MonitorWindow,
			PipValue:    profile.PipValue,
			VolumeScale: profile.VolumeScale,
		},
		Health: health.Config{
			Interval: profile.HealthInterval,
		},
	}, gw, sess, bus, sysMetrics, database, nil)

	eng.Run(ctx)

	server := api.NewServer(eng, bus, sysMetrics, cfg.JWTSecret, api.OperatorCredentials{
		User: cfg.OperatorUser,
		Pass: cfg.OperatorPass,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	eng.Shutdown(shutdownCtx)
	cancel()
}
