package prometheus

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShiftScope/pkg/errors"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

func newTestAppMetrics(t *testing.T) (*AppMetrics, MetricsCollector) {
	t.Helper()
	c := newTestCollector(t)
	return NewAppMetrics(c), c
}

func TestNewAppMetrics_AllMetricsRegistered(t *testing.T) {
	m, _ := newTestAppMetrics(t)
	require.NotNil(t, m)
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.PredictionsTotal)
	assert.NotNil(t, m.StageOutcomesTotal)
	assert.NotNil(t, m.SignalsPerPrediction)
	assert.NotNil(t, m.LLMTokensUsed)
	assert.NotNil(t, m.DatasetRecords)
	assert.NotNil(t, m.CacheErrorsTotal)
}

func TestRecordHTTPRequest(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordHTTPRequest(m, "POST", "/api/v1/nmr/predict", 200, 150*time.Millisecond)

	output := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_http_requests_total{method="POST",path="/api/v1/nmr/predict",status_code="200"}`))
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_http_request_duration_seconds_count{method="POST",path="/api/v1/nmr/predict"}`))
}

func samplePrediction(cached bool) *types.Prediction {
	return &types.Prediction{
		Stage: types.StageWebService,
		Result: types.PredictionResult{
			types.Nucleus1H:  {{Delta: 1.2, Count: 3}, {Delta: 3.6, Count: 2}},
			types.Nucleus13C: {{Delta: 18.0, Count: 1}},
		},
		Diagnostics: []types.StageDiagnostic{
			{Stage: types.StageLLM, Status: types.StatusFailed, Duration: time.Second},
			{Stage: types.StageWebService, Status: types.StatusSucceeded, Duration: 200 * time.Millisecond},
		},
		Cached: cached,
	}
}

func TestRecordPrediction(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordPrediction(m, samplePrediction(false), 1200*time.Millisecond)

	output := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_predictions_total{cached="false",stage="web_service"}`))
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_stage_outcomes_total{stage="llm",status="failed"}`))
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_stage_outcomes_total{stage="web_service",status="succeeded"}`))
	assert.Equal(t, 2.0, metricValue(t, output, `test_unit_signals_per_prediction_sum{nucleus="1H"}`))
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_signals_per_prediction_count{nucleus="19F"}`))
	assert.Equal(t, 0.0, metricValue(t, output, `test_unit_signals_per_prediction_sum{nucleus="19F"}`))
}

func TestRecordPrediction_CachedSkipsStages(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordPrediction(m, samplePrediction(true), time.Millisecond)

	output := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_predictions_total{cached="true",stage="web_service"}`))
	assert.NotContains(t, output, `test_unit_stage_outcomes_total{`)
}

func TestRecordPredictionError(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordPredictionError(m, errors.New(errors.ErrCodeNoStructure, "empty"))
	RecordPredictionError(m, stderrors.New("plain"))
	RecordPredictionError(m, nil)

	output := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_prediction_errors_total{code="`+string(errors.ErrCodeNoStructure)+`"}`))
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_prediction_errors_total{code="`+string(errors.CodeUnknown)+`"}`))
}

func TestRecordLLMCall(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordLLMCall(m, "claude", true, 120, 40)
	RecordLLMCall(m, "claude", true, 80, 10)

	output := scrapeMetrics(t, c)
	assert.Equal(t, 2.0, metricValue(t, output, `test_unit_llm_requests_total{model="claude",status="success"}`))
	assert.Equal(t, 200.0, metricValue(t, output, `test_unit_llm_tokens_total{direction="input",model="claude"}`))
	assert.Equal(t, 50.0, metricValue(t, output, `test_unit_llm_tokens_total{direction="output",model="claude"}`))
}

func TestRecordDatasetLoad(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordDatasetLoad(m, "embedded", 10*time.Millisecond, map[string]int{"1H": 37, "13C": 40}, nil)
	RecordDatasetLoad(m, "/tmp/x.db", time.Millisecond, nil, stderrors.New("missing"))

	output := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_dataset_loads_total{source="embedded",status="success"}`))
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_dataset_loads_total{source="/tmp/x.db",status="failure"}`))
	assert.Equal(t, 40.0, metricValue(t, output, `test_unit_dataset_records{nucleus="13C"}`))
}

func TestRecordCacheAccess(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordCacheAccess(m, "prediction", true)
	RecordCacheAccess(m, "prediction", false)
	RecordCacheAccess(m, "prediction", false)
	RecordCacheError(m, "prediction", "get")

	output := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_cache_hits_total{cache="prediction"}`))
	assert.Equal(t, 2.0, metricValue(t, output, `test_unit_cache_misses_total{cache="prediction"}`))
	assert.Equal(t, 1.0, metricValue(t, output, `test_unit_cache_errors_total{cache="prediction",operation="get"}`))
}

func TestRecordHelpers_NilMetrics(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordHTTPRequest(nil, "GET", "/", 200, time.Second)
		RecordPrediction(nil, samplePrediction(false), time.Second)
		RecordLLMCall(nil, "m", false, 0, 0)
		RecordCacheAccess(nil, "c", true)
		RecordDatasetLoad(nil, "s", 0, nil, nil)
	})
	assert.NotPanics(t, func() {
		RecordPrediction(NewNopAppMetrics(), samplePrediction(false), time.Second)
	})
}
