// Package http exposes the prediction service over a gin HTTP API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ShiftScope/internal/interfaces/http/handlers"
	"github.com/turtacn/ShiftScope/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware of the route tree.
type RouterConfig struct {
	PredictionHandler *handlers.PredictionHandler
	HealthHandler     *handlers.HealthHandler

	// RateLimiter is optional; nil disables limiting.
	RateLimiter middleware.RateLimiter
	Logging     middleware.LoggingConfig

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
	MetricsPath      string
	MaxBodySize      int64
}

// NewRouter builds the engine: global middleware, probes, the scrape
// endpoint and the /api/v1 group.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging))
	r.Use(middleware.Metrics(cfg.Metrics))
	if cfg.MaxBodySize > 0 {
		r.Use(limitBody(cfg.MaxBodySize))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1")
	if cfg.RateLimiter != nil {
		api.Use(middleware.RateLimit(cfg.RateLimiter, middleware.DefaultRateLimitConfig()))
	}
	registerPredictionRoutes(api, cfg.PredictionHandler)

	return r
}

func registerPredictionRoutes(r *gin.RouterGroup, h *handlers.PredictionHandler) {
	if h == nil {
		return
	}
	nmr := r.Group("/nmr")
	nmr.POST("/predict", h.Predict)
	nmr.DELETE("/cache", h.Invalidate)
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
