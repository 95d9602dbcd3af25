// Package prediction provides the application-level NMR prediction service.
// It sits between the HTTP/CLI surfaces and the prediction cascade and adds
// result caching and instrumentation.
package prediction

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ShiftScope/internal/infrastructure/database/redis"
	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ShiftScope/pkg/errors"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// CacheKeyPrefix namespaces prediction entries in the result cache.
const CacheKeyPrefix = "nmr:prediction:"

// CacheName labels the prediction cache in metrics.
const CacheName = "prediction"

// Service defines the application operations on predictions.
type Service interface {
	Predict(ctx context.Context, input *PredictInput) (*types.Prediction, error)
	// Invalidate drops every cached prediction and returns how many were removed.
	Invalidate(ctx context.Context) (int64, error)
}

// PredictInput contains input for a prediction.
type PredictInput struct {
	Structure   string
	BypassCache bool
}

// Predictor is the cascade as seen by the service.
type Predictor interface {
	Predict(ctx context.Context, structureID string) (*types.Prediction, error)
}

// Config tunes the service.
type Config struct {
	CacheTTL time.Duration
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	predictor Predictor
	cache     redis.Cache
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
	cfg       Config
}

// NewService creates a prediction service. cache and metrics may be nil.
func NewService(predictor Predictor, cache redis.Cache, metrics *prometheus.AppMetrics, logger logging.Logger, cfg Config) Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 6 * time.Hour
	}
	return &serviceImpl{
		predictor: predictor,
		cache:     cache,
		metrics:   metrics,
		logger:    logging.OrNop(logger).Named("prediction"),
		cfg:       cfg,
	}
}

// CacheKey returns the cache key for a structure.
func CacheKey(structure string) string {
	return CacheKeyPrefix + strings.TrimSpace(structure)
}

func (s *serviceImpl) Predict(ctx context.Context, input *PredictInput) (*types.Prediction, error) {
	if input == nil || strings.TrimSpace(input.Structure) == "" {
		err := errors.New(errors.ErrCodeNoStructure, "structure is required")
		prometheus.RecordPredictionError(s.metrics, err)
		return nil, err
	}
	start := time.Now()

	var (
		p   *types.Prediction
		err error
	)
	switch {
	case s.cache == nil:
		p, err = s.predictor.Predict(ctx, input.Structure)
	case input.BypassCache:
		p, err = s.refresh(ctx, input.Structure)
	default:
		p, err = s.cachedPredict(ctx, input.Structure)
	}
	if err != nil {
		prometheus.RecordPredictionError(s.metrics, err)
		return nil, err
	}
	prometheus.RecordPrediction(s.metrics, p, time.Since(start))
	return p, nil
}

// cachedPredict serves from the cache or runs the cascade once for all
// concurrent callers asking for the same structure. Empty results are
// returned but never stored.
func (s *serviceImpl) cachedPredict(ctx context.Context, structure string) (*types.Prediction, error) {
	key := CacheKey(structure)
	var (
		stored types.Prediction
		fresh  *types.Prediction
	)
	hit, err := s.cache.GetOrSet(ctx, key, &stored, s.cfg.CacheTTL, func(ctx context.Context) (interface{}, bool, error) {
		p, err := s.predictor.Predict(ctx, structure)
		if err != nil {
			return nil, false, err
		}
		fresh = p
		return p, !p.Result.IsEmpty(), nil
	})
	prometheus.RecordCacheAccess(s.metrics, CacheName, hit)
	if err != nil {
		return nil, err
	}
	if hit {
		stored.RunID = uuid.NewString()
		stored.Cached = true
		s.logger.Debug("prediction served from cache", logging.String("key", key), logging.RunID(stored.RunID))
		return &stored, nil
	}
	if fresh != nil {
		return fresh, nil
	}
	// Joined a run started by another caller.
	return &stored, nil
}

// refresh runs the cascade without reading the cache and stores the result.
func (s *serviceImpl) refresh(ctx context.Context, structure string) (*types.Prediction, error) {
	p, err := s.predictor.Predict(ctx, structure)
	if err != nil {
		return nil, err
	}
	if !p.Result.IsEmpty() {
		key := CacheKey(structure)
		if err := s.cache.Set(ctx, key, p, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache prediction", logging.String("key", key), logging.Err(err))
		}
	}
	return p, nil
}

func (s *serviceImpl) Invalidate(ctx context.Context) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	n, err := s.cache.DeleteByPrefix(ctx, CacheKeyPrefix)
	if err != nil {
		return n, errors.Wrap(err, errors.ErrCodeCacheError, "failed to invalidate cached predictions")
	}
	s.logger.Info("cached predictions invalidated", logging.Int64("count", n))
	return n, nil
}
