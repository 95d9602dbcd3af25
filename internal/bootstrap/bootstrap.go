// Package bootstrap assembles the prediction stack from configuration. Both
// the HTTP server and the CLI build their dependencies through it.
package bootstrap

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ShiftScope/internal/application/prediction"
	"github.com/turtacn/ShiftScope/internal/config"
	"github.com/turtacn/ShiftScope/internal/infrastructure/database/redis"
	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ShiftScope/internal/intelligence/nmr"
	"github.com/turtacn/ShiftScope/internal/intelligence/shift_gpt"
	"github.com/turtacn/ShiftScope/internal/intelligence/shift_stats"
	"github.com/turtacn/ShiftScope/internal/intelligence/shift_web"
	httpapi "github.com/turtacn/ShiftScope/internal/interfaces/http"
	"github.com/turtacn/ShiftScope/internal/interfaces/http/handlers"
	"github.com/turtacn/ShiftScope/internal/interfaces/http/middleware"
	"github.com/turtacn/ShiftScope/pkg/errors"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// App holds the wired components. Close releases the ones that own
// connections.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Catalog   *nmr.Catalog
	Cascade   *nmr.Cascade
	Loader    *shift_stats.DatasetLoader
	Service   prediction.Service
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	redisClient *redis.Client
	cache       redis.Cache
	limiter     *middleware.TokenBucketLimiter
}

// New builds the application. Back-ends that are disabled or unusable are
// left out of the cascade; the local stage is always present. A Redis
// instance that cannot be reached disables caching instead of failing.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.InvalidParam("config is required")
	}
	log = logging.OrNop(log)
	a := &App{Config: cfg, Logger: log}

	catalog, err := BuildCatalog(cfg.NMR)
	if err != nil {
		return nil, err
	}
	a.Catalog = catalog

	if cfg.Metrics.Enabled {
		a.Collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			Subsystem:            cfg.Metrics.Subsystem,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, log)
		if err != nil {
			return nil, err
		}
		a.Metrics = prometheus.NewAppMetrics(a.Collector)
	} else {
		a.Collector = prometheus.NewNopCollector()
		a.Metrics = prometheus.NewNopAppMetrics()
	}

	a.Loader = shift_stats.NewDatasetLoader(cfg.LocalDB.Path, log)
	a.Loader.OnLoad(func(source string, elapsed time.Duration, counts map[string]int, err error) {
		prometheus.RecordDatasetLoad(a.Metrics, source, elapsed, counts, err)
	})

	opts := []nmr.Option{
		nmr.WithLogger(log),
		nmr.WithLocalPredictor(shift_stats.NewPredictor(a.Loader, log)),
		nmr.WithConverter(nmr.PassthroughConverter{MaxLength: cfg.NMR.MaxSMILESLength}),
		nmr.WithOptions(nmr.Options{
			LLMTimeout:      cfg.LLM.Timeout,
			WebTimeout:      cfg.WebService.Timeout,
			MaxSMILESLength: cfg.NMR.MaxSMILESLength,
		}),
	}

	if llm := a.buildLLM(); llm != nil {
		opts = append(opts, nmr.WithLLM(llm))
	}
	if cfg.WebService.Enabled {
		web, err := shift_web.NewClient(shift_web.Config{
			BaseURL:    cfg.WebService.BaseURL,
			Timeout:    cfg.WebService.Timeout,
			MaxRetries: cfg.WebService.MaxRetries,
			UserAgent:  cfg.WebService.UserAgent,
		}, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, nmr.WithWebPredictor(web))
	}
	a.Cascade = nmr.NewCascade(catalog, opts...)

	if cfg.Redis.Enabled {
		a.connectCache(ctx)
	}

	var cache redis.Cache
	if a.cache != nil {
		cache = a.cache
	}
	a.Service = prediction.NewService(a.Cascade, cache, a.Metrics, log, prediction.Config{CacheTTL: cfg.Redis.PredictionTTL})
	return a, nil
}

func (a *App) buildLLM() nmr.LLMResponder {
	cfg := a.Config.LLM
	if !cfg.Enabled {
		return nil
	}
	if cfg.APIKey == "" {
		a.Logger.Warn("llm stage enabled without an api key; skipping it")
		return nil
	}
	client, err := shift_gpt.NewClient(&shift_gpt.Config{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
	}, a.Logger, shift_gpt.WithUsageObserver(func(model string, u shift_gpt.Usage) {
		prometheus.RecordLLMCall(a.Metrics, model, true, u.InputTokens, u.OutputTokens)
	}))
	if err != nil {
		a.Logger.Warn("llm stage disabled", logging.Err(err))
		return nil
	}
	return client
}

func (a *App) connectCache(ctx context.Context) {
	rc := a.Config.Redis
	client, err := redis.NewClient(ctx, &redis.RedisConfig{
		Mode:         rc.Mode,
		Addr:         rc.Addr,
		Addrs:        rc.Addrs,
		MasterName:   rc.MasterName,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	}, a.Logger)
	if err != nil {
		a.Logger.Warn("prediction cache unavailable; continuing without it", logging.Err(err))
		return
	}
	a.redisClient = client
	a.cache = redis.NewRedisCache(client, a.Logger,
		redis.WithPrefix(rc.KeyPrefix),
		redis.WithDefaultTTL(rc.PredictionTTL),
		redis.WithErrorObserver(func(op string) {
			prometheus.RecordCacheError(a.Metrics, prediction.CacheName, op)
		}),
	)
}

// BuildCatalog applies the configured per-nucleus overrides to the built-in
// catalog.
func BuildCatalog(cfg config.NMRConfig) (*nmr.Catalog, error) {
	overrides := make(map[types.NucleusKey]nmr.Override)
	for _, k := range types.AllNuclei() {
		if o, ok := cfg.Override(string(k)); ok {
			overrides[k] = nmr.Override{Tolerance: o.Tolerance, MinShift: o.MinShift, MaxShift: o.MaxShift}
		}
	}
	return nmr.NewCatalog(overrides)
}

// HealthCheckers returns the readiness checks for the wired components.
func (a *App) HealthCheckers() []handlers.HealthChecker {
	checks := []handlers.HealthChecker{
		handlers.CheckerFunc{ComponentName: "shift_dataset", Fn: func(ctx context.Context) error {
			_, err := a.Loader.Ensure(ctx)
			return err
		}},
	}
	if a.cache != nil {
		checks = append(checks, handlers.CheckerFunc{ComponentName: "redis", Fn: a.cache.Ping})
	}
	return checks
}

// Router builds the HTTP route tree over the service.
func (a *App) Router(version string) *gin.Engine {
	sc := a.Config.Server
	gin.SetMode(sc.Mode)

	rc := httpapi.RouterConfig{
		PredictionHandler: handlers.NewPredictionHandler(a.Service, a.Logger, sc.WriteTimeout),
		HealthHandler:     handlers.NewHealthHandler(version, a.HealthCheckers()...),
		Logging:           middleware.DefaultLoggingConfig(),
		Logger:            a.Logger,
		Metrics:           a.Metrics,
		MaxBodySize:       sc.MaxBodySize,
	}
	if a.Config.Metrics.Enabled {
		rc.MetricsCollector = a.Collector
		rc.MetricsPath = a.Config.Metrics.Path
	}
	if sc.RateLimitRPS > 0 {
		if a.limiter == nil {
			a.limiter = middleware.NewTokenBucketLimiter(sc.RateLimitRPS, sc.RateLimitBurst, middleware.DefaultCleanupInterval)
		}
		rc.RateLimiter = a.limiter
	}
	return httpapi.NewRouter(rc)
}

// Close releases the cache connection and the limiter's janitor.
func (a *App) Close() error {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.redisClient != nil {
		return a.redisClient.Close()
	}
	return nil
}
