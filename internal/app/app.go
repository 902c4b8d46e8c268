package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/rates-ingest/internal/api"
	"github.com/ayo6706/rates-ingest/internal/api/middleware"
	"github.com/ayo6706/rates-ingest/internal/config"
	"github.com/ayo6706/rates-ingest/internal/db"
	"github.com/ayo6706/rates-ingest/internal/observability"
	"github.com/ayo6706/rates-ingest/internal/oxr"
	"github.com/ayo6706/rates-ingest/internal/repository"
	"github.com/ayo6706/rates-ingest/internal/runlock"
	"github.com/ayo6706/rates-ingest/internal/service"
	"github.com/ayo6706/rates-ingest/internal/warehouse"
	"github.com/ayo6706/rates-ingest/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and the scheduled ingest worker, blocking
// until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	lock := runlock.New(redisClient, cfg.RunLockTTL)
	store := warehouse.NewPgStore(pool, cfg.DestTable, cfg.StagingTable)
	coordinator := warehouse.NewCoordinator(store)

	fetchPolicy := oxr.DefaultRetryPolicy()
	fetchPolicy.MaxAttempts = cfg.FetchMaxAttempts
	fetchPolicy.BaseDelay = cfg.FetchBaseDelay
	fetcher := oxr.NewClient(cfg.OXRBaseURL, cfg.OXRAppID, fetchPolicy)

	ingestSvc := service.NewIngestService(fetcher, coordinator, cfg.TrackedCurrencies, cfg.LookbackDays)
	repo := repository.NewRepository(pool, cfg.DestTable)

	ingestWorker := worker.NewIngestWorker(ingestSvc, lock).WithInterval(cfg.IngestInterval)
	stopWorker := ingestWorker.Run(ctx)
	logger.Info("ingest worker started",
		zap.Duration("interval", cfg.IngestInterval),
		zap.Int("lookback_days", cfg.LookbackDays),
		zap.Strings("tracked_currencies", cfg.TrackedCurrencies),
	)

	router := api.NewRouter(cfg, logger, pool, redisClient, ingestSvc, repo, lock)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute, // a synchronous ingest run can take a while
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping ingest worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
