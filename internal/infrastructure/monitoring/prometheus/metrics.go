package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/ShiftScope/pkg/errors"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// AppMetrics holds all application metrics.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Prediction cascade
	PredictionsTotal      CounterVec
	PredictionDuration    HistogramVec
	StageOutcomesTotal    CounterVec
	StageDuration         HistogramVec
	SignalsPerPrediction  HistogramVec
	PredictionErrorsTotal CounterVec

	// Back-ends
	LLMRequestsTotal    CounterVec
	LLMTokensUsed       CounterVec
	DatasetLoadsTotal   CounterVec
	DatasetLoadDuration HistogramVec
	DatasetRecords      GaugeVec

	// Cache
	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec
	CacheErrorsTotal CounterVec

	ServiceInfo GaugeVec
}

var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultStageDurationBuckets = []float64{.001, .01, .05, .1, .5, 1, 2, 5, 10, 30, 60, 120}
	DefaultSignalCountBuckets   = []float64{0, 1, 2, 5, 10, 20, 50, 100}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method", "path")

	m.PredictionsTotal = collector.RegisterCounter("predictions_total", "Completed predictions by answering stage", "stage", "cached")
	m.PredictionDuration = collector.RegisterHistogram("prediction_duration_seconds", "End-to-end prediction duration", DefaultStageDurationBuckets, "stage")
	m.StageOutcomesTotal = collector.RegisterCounter("stage_outcomes_total", "Cascade stage attempts by outcome", "stage", "status")
	m.StageDuration = collector.RegisterHistogram("stage_duration_seconds", "Cascade stage duration", DefaultStageDurationBuckets, "stage")
	m.SignalsPerPrediction = collector.RegisterHistogram("signals_per_prediction", "Clustered signals per nucleus in a prediction", DefaultSignalCountBuckets, "nucleus")
	m.PredictionErrorsTotal = collector.RegisterCounter("prediction_errors_total", "Predictions that returned an error", "code")

	m.LLMRequestsTotal = collector.RegisterCounter("llm_requests_total", "Language model requests", "model", "status")
	m.LLMTokensUsed = collector.RegisterCounter("llm_tokens_total", "Language model tokens used", "model", "direction")
	m.DatasetLoadsTotal = collector.RegisterCounter("dataset_loads_total", "Local shift dataset loads", "source", "status")
	m.DatasetLoadDuration = collector.RegisterHistogram("dataset_load_duration_seconds", "Local shift dataset load duration", DefaultStageDurationBuckets, "source")
	m.DatasetRecords = collector.RegisterGauge("dataset_records", "Environment records in the loaded shift dataset", "nucleus")

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.CacheErrorsTotal = collector.RegisterCounter("cache_errors_total", "Cache backend errors", "cache", "operation")

	m.ServiceInfo = collector.RegisterGauge("service_info", "Build information", "version")

	return m
}

// NewNopAppMetrics returns metrics that record nothing.
func NewNopAppMetrics() *AppMetrics {
	return NewAppMetrics(NewNopCollector())
}

func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPrediction records the answering stage, every stage diagnostic and
// the per-nucleus signal counts of p.
func RecordPrediction(m *AppMetrics, p *types.Prediction, duration time.Duration) {
	if m == nil || p == nil {
		return
	}
	stage := string(p.Stage)
	m.PredictionsTotal.WithLabelValues(stage, strconv.FormatBool(p.Cached)).Inc()
	m.PredictionDuration.WithLabelValues(stage).Observe(duration.Seconds())
	for _, k := range types.AllNuclei() {
		m.SignalsPerPrediction.WithLabelValues(string(k)).Observe(float64(len(p.Result[k])))
	}
	if p.Cached {
		return
	}
	for _, d := range p.Diagnostics {
		RecordStage(m, d)
	}
}

func RecordStage(m *AppMetrics, d types.StageDiagnostic) {
	if m == nil {
		return
	}
	m.StageOutcomesTotal.WithLabelValues(string(d.Stage), string(d.Status)).Inc()
	m.StageDuration.WithLabelValues(string(d.Stage)).Observe(d.Duration.Seconds())
}

func RecordPredictionError(m *AppMetrics, err error) {
	if m == nil || err == nil {
		return
	}
	m.PredictionErrorsTotal.WithLabelValues(string(errors.GetCode(err))).Inc()
}

func RecordLLMCall(m *AppMetrics, model string, success bool, inputTokens, outputTokens int64) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.LLMRequestsTotal.WithLabelValues(model, status).Inc()
	m.LLMTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
}

// RecordDatasetLoad records one load attempt. records may be nil on failure.
func RecordDatasetLoad(m *AppMetrics, source string, duration time.Duration, records map[string]int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.DatasetLoadsTotal.WithLabelValues(source, status).Inc()
	m.DatasetLoadDuration.WithLabelValues(source).Observe(duration.Seconds())
	for nucleus, n := range records {
		m.DatasetRecords.WithLabelValues(nucleus).Set(float64(n))
	}
}

func RecordCacheAccess(m *AppMetrics, cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordCacheError(m *AppMetrics, cache, operation string) {
	if m == nil {
		return
	}
	m.CacheErrorsTotal.WithLabelValues(cache, operation).Inc()
}
