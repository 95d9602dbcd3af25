package prediction

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShiftScope/internal/infrastructure/database/redis"
	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ShiftScope/internal/testutil"
	"github.com/turtacn/ShiftScope/pkg/errors"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// MockPredictor is a mock implementation of Predictor.
type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) Predict(ctx context.Context, structureID string) (*types.Prediction, error) {
	args := m.Called(ctx, structureID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Prediction), args.Error(1)
}

// MockCache is a mock implementation of redis.Cache.
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	if fn, ok := args.Get(0).(func(interface{}) error); ok {
		return fn(dest)
	}
	return args.Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *MockCache) Delete(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *MockCache) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader redis.Loader) (bool, error) {
	args := m.Called(ctx, key, dest, ttl)
	if fn, ok := args.Get(0).(func(interface{}, redis.Loader) (bool, error)); ok {
		return fn(dest, loader)
	}
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	args := m.Called(ctx, prefix)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *MockCache) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func ethanolPrediction() *types.Prediction {
	return &types.Prediction{
		RunID:     "run-1",
		Structure: "CCO",
		Stage:     types.StageWebService,
		Result: types.PredictionResult{
			types.Nucleus1H:  {{Delta: 1.2, Count: 3}, {Delta: 3.6, Count: 2}},
			types.Nucleus13C: {{Delta: 18.0, Count: 1}, {Delta: 58.0, Count: 1}},
		},
		CompletedAt: time.Now(),
	}
}

func TestPredict_EmptyStructure(t *testing.T) {
	pred := new(MockPredictor)
	svc := NewService(pred, nil, nil, nil, Config{})

	for _, in := range []*PredictInput{nil, {Structure: ""}, {Structure: " \t"}} {
		_, err := svc.Predict(context.Background(), in)
		assert.True(t, errors.IsCode(err, errors.ErrCodeNoStructure))
	}
	pred.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestPredict_NoCache(t *testing.T) {
	pred := new(MockPredictor)
	pred.On("Predict", mock.Anything, "CCO").Return(ethanolPrediction(), nil).Once()
	svc := NewService(pred, nil, nil, nil, Config{})

	p, err := svc.Predict(context.Background(), &PredictInput{Structure: "CCO"})
	require.NoError(t, err)
	assert.Equal(t, types.StageWebService, p.Stage)
	assert.False(t, p.Cached)
	pred.AssertExpectations(t)
}

func newMiniCache(t *testing.T, log logging.Logger) (*miniredis.Miniredis, redis.Cache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redis.NewClient(context.Background(), &redis.RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.NewRedisCache(client, log, redis.WithPrefix("ss:"))
}

func TestPredict_CacheMissStoresResult(t *testing.T) {
	mr, cache := newMiniCache(t, nil)
	pred := new(MockPredictor)
	want := ethanolPrediction()
	pred.On("Predict", mock.Anything, " CCO ").Return(want, nil).Once()

	svc := NewService(pred, cache, nil, nil, Config{CacheTTL: time.Hour})
	p, err := svc.Predict(context.Background(), &PredictInput{Structure: " CCO "})

	require.NoError(t, err)
	assert.Same(t, want, p)
	assert.False(t, p.Cached)
	require.True(t, mr.Exists("ss:nmr:prediction:CCO"))
	assert.InDelta(t, float64(time.Hour), float64(mr.TTL("ss:nmr:prediction:CCO")), float64(6*time.Minute))
	pred.AssertExpectations(t)
}

func TestPredict_CacheHitSkipsCascade(t *testing.T) {
	pred := new(MockPredictor)
	cache := new(MockCache)
	cache.On("GetOrSet", mock.Anything, "nmr:prediction:CCO", mock.Anything, 6*time.Hour).Return(func(dest interface{}, _ redis.Loader) (bool, error) {
		*dest.(*types.Prediction) = *ethanolPrediction()
		return true, nil
	}).Once()

	svc := NewService(pred, cache, nil, nil, Config{})
	p, err := svc.Predict(context.Background(), &PredictInput{Structure: "CCO"})

	require.NoError(t, err)
	assert.True(t, p.Cached)
	assert.NotEqual(t, "run-1", p.RunID)
	assert.NotEmpty(t, p.RunID)
	assert.Len(t, p.Result[types.Nucleus1H], 2)
	pred.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestPredict_BypassCacheStillWrites(t *testing.T) {
	pred := new(MockPredictor)
	cache := new(MockCache)
	want := ethanolPrediction()
	pred.On("Predict", mock.Anything, "CCO").Return(want, nil).Once()
	cache.On("Set", mock.Anything, "nmr:prediction:CCO", want, 6*time.Hour).Return(nil).Once()

	svc := NewService(pred, cache, nil, nil, Config{})
	_, err := svc.Predict(context.Background(), &PredictInput{Structure: "CCO", BypassCache: true})

	require.NoError(t, err)
	cache.AssertNotCalled(t, "GetOrSet", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cache.AssertExpectations(t)
}

func TestPredict_CacheFailuresAreMisses(t *testing.T) {
	log := testutil.NewMockLogger()
	mr, cache := newMiniCache(t, log)
	mr.SetError("ERR redis is down")

	pred := new(MockPredictor)
	pred.On("Predict", mock.Anything, "CCO").Return(ethanolPrediction(), nil).Once()

	svc := NewService(pred, cache, nil, nil, Config{})
	p, err := svc.Predict(context.Background(), &PredictInput{Structure: "CCO"})

	require.NoError(t, err)
	assert.False(t, p.Cached)
	assert.True(t, log.HasMessage("warn", "Cache read failed, loading directly"))
	assert.True(t, log.HasMessage("warn", "Failed to set cache in GetOrSet"))
	pred.AssertExpectations(t)
}

func TestPredict_ErrorsAndEmptyResultsNotCached(t *testing.T) {
	mr, cache := newMiniCache(t, nil)
	pred := new(MockPredictor)
	cancelled := errors.Wrap(context.Canceled, errors.ErrCodePredictionCancelled, "prediction cancelled")
	empty := &types.Prediction{Stage: types.StageLocalDatabase, Result: types.NewPredictionResult()}
	pred.On("Predict", mock.Anything, "C1").Return(nil, cancelled).Once()
	pred.On("Predict", mock.Anything, "C2").Return(empty, nil).Twice()

	svc := NewService(pred, cache, nil, nil, Config{})

	_, err := svc.Predict(context.Background(), &PredictInput{Structure: "C1"})
	assert.True(t, errors.IsCancelled(err))
	assert.False(t, mr.Exists("ss:nmr:prediction:C1"))

	for i := 0; i < 2; i++ {
		p, err := svc.Predict(context.Background(), &PredictInput{Structure: "C2"})
		require.NoError(t, err)
		assert.Same(t, empty, p)
		assert.False(t, p.Cached)
	}
	assert.False(t, mr.Exists("ss:nmr:prediction:C2"))
	pred.AssertExpectations(t)
}

func TestPredict_ConcurrentCallersShareOneRun(t *testing.T) {
	_, cache := newMiniCache(t, nil)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	pred := new(MockPredictor)
	pred.On("Predict", mock.Anything, "CCO").Run(func(mock.Arguments) {
		entered <- struct{}{}
		<-release
	}).Return(ethanolPrediction(), nil).Once()

	svc := NewService(pred, cache, nil, nil, Config{})

	const callers = 5
	results := make([]*types.Prediction, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	call := func(i int) {
		defer wg.Done()
		results[i], errs[i] = svc.Predict(context.Background(), &PredictInput{Structure: "CCO"})
	}

	wg.Add(1)
	go call(0)
	<-entered
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go call(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Result[types.Nucleus13C], results[i].Result[types.Nucleus13C])
	}
	pred.AssertNumberOfCalls(t, "Predict", 1)
}

func TestPredict_RecordsMetrics(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "t"}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(collector)

	_, cache := newMiniCache(t, nil)
	pred := new(MockPredictor)
	pred.On("Predict", mock.Anything, "CCO").Return(ethanolPrediction(), nil).Once()

	svc := NewService(pred, cache, metrics, nil, Config{})
	_, err = svc.Predict(context.Background(), &PredictInput{Structure: "CCO"})
	require.NoError(t, err)
	_, err = svc.Predict(context.Background(), &PredictInput{Structure: "CCO"})
	require.NoError(t, err)
	_, err = svc.Predict(context.Background(), &PredictInput{})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `t_predictions_total{cached="false",stage="web_service"} 1`)
	assert.Contains(t, body, `t_predictions_total{cached="true",stage="web_service"} 1`)
	assert.Contains(t, body, `t_cache_misses_total{cache="prediction"} 1`)
	assert.Contains(t, body, `t_cache_hits_total{cache="prediction"} 1`)
	assert.Contains(t, body, `t_prediction_errors_total{code="NMR_001"} 1`)
}

func TestPredict_AgainstMiniredis(t *testing.T) {
	mr, cache := newMiniCache(t, nil)

	pred := new(MockPredictor)
	pred.On("Predict", mock.Anything, "CCO").Return(ethanolPrediction(), nil).Once()
	svc := NewService(pred, cache, nil, nil, Config{CacheTTL: time.Hour})

	first, err := svc.Predict(context.Background(), &PredictInput{Structure: "CCO"})
	require.NoError(t, err)
	second, err := svc.Predict(context.Background(), &PredictInput{Structure: "CCO"})
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Result[types.Nucleus1H], second.Result[types.Nucleus1H])
	assert.Equal(t, first.Result[types.Nucleus13C], second.Result[types.Nucleus13C])
	assert.Empty(t, second.Result[types.Nucleus19F])
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.True(t, mr.Exists("ss:nmr:prediction:CCO"))

	n, err := svc.Invalidate(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.False(t, mr.Exists("ss:nmr:prediction:CCO"))
	pred.AssertExpectations(t)
}

func TestInvalidate(t *testing.T) {
	svc := NewService(new(MockPredictor), nil, nil, nil, Config{})
	n, err := svc.Invalidate(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)

	cache := new(MockCache)
	cache.On("DeleteByPrefix", mock.Anything, CacheKeyPrefix).Return(int64(2), stderrors.New("scan failed"))
	svc = NewService(new(MockPredictor), cache, nil, nil, Config{})
	n, err = svc.Invalidate(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
	assert.EqualValues(t, 2, n)
}
