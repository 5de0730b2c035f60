package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/aegis-sec/sentinel/internal/api"
	"github.com/aegis-sec/sentinel/internal/auth"
	"github.com/aegis-sec/sentinel/internal/behavior"
	"github.com/aegis-sec/sentinel/internal/classify"
	"github.com/aegis-sec/sentinel/internal/config"
	"github.com/aegis-sec/sentinel/internal/explain"
	"github.com/aegis-sec/sentinel/internal/fusion"
	"github.com/aegis-sec/sentinel/internal/integrity"
	"github.com/aegis-sec/sentinel/internal/monitoring"
	"github.com/aegis-sec/sentinel/internal/pipeline"
	"github.com/aegis-sec/sentinel/internal/queue"
	"github.com/aegis-sec/sentinel/internal/realtime"
	"github.com/aegis-sec/sentinel/internal/store"
	"github.com/aegis-sec/sentinel/internal/worker"
)

func main() {
	// Local development reads a .env file; deployed environments set
	// real variables.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Error("configuration load failed", "error", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Error("JWT_SECRET must be set")
		os.Exit(1)
	}
	if cfg.DB.URL == "" {
		logger.Error("DATABASE_URL must be set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pg, err := store.Open(ctx, cfg.DB.URL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := store.Migrate(ctx, pg.DB()); err != nil {
		logger.Error("schema migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, baseline cache disabled", "addr", cfg.Redis.Addr, "error", err)
			rdb = nil
		} else {
			logger.Info("baseline cache enabled", "addr", cfg.Redis.Addr)
		}
	}

	metrics := monitoring.New(prometheus.DefaultRegisterer)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL(), cfg.Auth.RefreshTTL())
	registry := integrity.NewRegistry(pg, rdb, logger)

	detector := behavior.NewDetector(cfg.Risk.Contamination)
	classifier := classify.New()
	engine := fusion.NewEngine(fusion.Weights{
		Behavior:    cfg.Risk.BehaviorWeight,
		Sensitivity: cfg.Risk.SensitivityWeight,
		Integrity:   cfg.Risk.IntegrityWeight,
	})

	pipe := pipeline.New(
		behavior.NewHistory(),
		detector,
		classifier,
		integrity.NewVerifier(integrity.CosineEmbedder{}),
		registry,
		engine,
		pipeline.Options{
			DocumentExplainer: explain.NewDocumentExplainer(func(text string) map[string]float64 {
				return classifier.Classify(text).Probabilities
			}, 0),
			Logger: logger,
		},
	)

	// The detector starts untrained and neutral; refit it periodically
	// from the rolling feature buffer once traffic accumulates.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := pipe.Retrain(50); err != nil && !errors.Is(err, pipeline.ErrNotEnoughSamples) {
				logger.Warn("detector retrain failed", "error", err)
			}
		}
	}()

	q := queue.New(cfg.Queue.Capacity, cfg.Queue.NearCapacityPct)
	hub := realtime.NewHub(metrics, logger)
	pool := worker.NewPool(q, pipe, pg, registry, hub, metrics, cfg.Queue.Workers, logger)
	pool.Start(context.Background())

	wsHandler := realtime.NewHandler(hub, issuer, cfg.Server.AllowedOrigins)
	server := api.NewServer(q, pg, issuer, classifier, wsHandler, metrics, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}

		// Stop admission, let the workers drain what was accepted, then
		// drop the websocket sessions.
		q.Close()
		pool.Wait()
		hub.CloseAll()
	}()

	logger.Info("sentinel listening",
		"port", cfg.Server.Port,
		"workers", cfg.Queue.Workers,
		"queue_capacity", cfg.Queue.Capacity,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
