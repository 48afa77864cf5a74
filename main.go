package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	libredis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"

	"emergency-service/internal/alerts"
	"emergency-service/internal/api"
	"emergency-service/internal/circle"
	"emergency-service/internal/config"
	"emergency-service/internal/db"
	"emergency-service/internal/dispatch"
	"emergency-service/internal/escalation"
	"emergency-service/internal/events"
	"emergency-service/internal/gate"
	"emergency-service/internal/logging"
	"emergency-service/internal/providers"
	"emergency-service/internal/realtime"
	"emergency-service/internal/rewards"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed:", err)
	}

	// Initialize logger
	logger := logging.New(cfg.Logging)

	// Connect to DB and apply migrations
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Fatalf("DB connect failed: %v", err)
	}
	defer dbConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := dbConn.Migrate(ctx); err != nil {
		cancel()
		logger.Fatalf("DB migration failed: %v", err)
	}
	cancel()

	// Creation gate, backed by Redis when available so limits hold across
	// replicas
	var gateStore limiter.Store
	if cfg.Redis.Addr != "" {
		client := libredis.NewClient(&libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		gateStore, err = gate.NewRedisStore(client)
		if err != nil {
			logger.Fatalf("Redis gate store init failed: %v", err)
		}
		logger.Infof("Creation gate using Redis at %s", cfg.Redis.Addr)
	} else {
		gateStore = gate.NewMemoryStore()
		logger.Warnf("REDIS_ADDR not set, creation gate is per-process only")
	}
	creationGate := gate.New(gateStore, cfg.Gate.MaxAlerts, cfg.Gate.Window, logger)

	// Delivery channels and fan-out dispatcher
	hub := realtime.NewHub(logger)
	channels := providers.Channels(cfg, hub, logger)
	dispatcher := dispatch.New(dbConn, channels, cfg.Dispatch.SendTimeout, logger)

	// Lifecycle event stream
	publisher := events.NewPublisher(cfg.Kafka.Broker, cfg.Kafka.Topic, logger)
	defer publisher.Close()

	// Alert lifecycle service
	resolver := circle.NewDBResolver(dbConn)
	rewardsClient := rewards.NewClient(cfg.Rewards.ServiceURL, logger)
	svc := alerts.NewService(dbConn, resolver, creationGate, dispatcher, rewardsClient, hub, publisher, logger)

	// Escalation sweeper
	sweeper := escalation.NewSweeper(dbConn, resolver, dispatcher, svc, publisher, escalation.Config{
		Schedule:         cfg.Escalation.SweepSchedule,
		OverdueAfter:     cfg.Escalation.OverdueAfter,
		EscalationEvery:  cfg.Escalation.EscalationEvery,
		AutoResolveAfter: cfg.Escalation.AutoResolveAfter,
	}, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatalf("Sweeper start failed: %v", err)
	}

	// Start API server
	r := api.NewRouter(svc, hub, logger, cfg)
	go func() {
		logger.Infof("API started on %s", cfg.API.Port)
		if err := r.Run(cfg.API.Port); err != nil {
			logger.Errorf("API run failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Infof("Shutting down...")
	sweeper.Stop()
	logger.Infof("Service stopped")
}
