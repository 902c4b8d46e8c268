package api

import (
	"github.com/ayo6706/rates-ingest/internal/api/handler"
	"github.com/ayo6706/rates-ingest/internal/api/middleware"
	"github.com/ayo6706/rates-ingest/internal/api/spec"
	"github.com/ayo6706/rates-ingest/internal/config"

	"github.com/ayo6706/rates-ingest/internal/runlock"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *pgxpool.Pool
	redis  redis.Cmdable
	runner handler.IngestRunner
	repo   handler.RateReader
	lock   *runlock.Lock
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, redisClient redis.Cmdable, runner handler.IngestRunner, repo handler.RateReader, lock *runlock.Lock) *Router {
	return &Router{
		cfg:    cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
		runner: runner,
		repo:   repo,
		lock:   lock,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	ingestHandler := handler.NewIngestHandler(api.runner, api.lock)
	ratesHandler := handler.NewRatesHandler(api.repo)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/healthz/live", healthHandler.Live)
		r.Get("/healthz/ready", healthHandler.Ready)
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
	})
	r.Handle("/metrics", promhttp.Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/rates", ratesHandler.Get)
		r.With(middleware.RequireRole("admin")).Post("/v1/ingest", ingestHandler.Trigger)
	})

	return r
}
