package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/pkg/errors"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", Subsystem: "unit"}, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func scrapeMetrics(t *testing.T, collector MetricsCollector) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

// metricValue returns the sample value of the first line starting with series.
func metricValue(t *testing.T, output, series string) float64 {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "#") || !strings.HasPrefix(line, series+" ") {
			continue
		}
		fields := strings.Fields(line)
		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		require.NoError(t, err)
		return v
	}
	t.Fatalf("series %s not found in:\n%s", series, output)
	return 0
}

func TestNewMetricsCollector_EmptyNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{Subsystem: "unit"}, nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestNewMetricsCollector_WithProcessMetrics(t *testing.T) {
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", EnableProcessMetrics: true, EnableGoMetrics: true}, nil)
	require.NoError(t, err)
	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "go_goroutines")
}

func TestRegisterCounter_WithLabels(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("stage_attempts_total", "help", "stage").WithLabelValues("llm").Add(5)

	output := scrapeMetrics(t, c)
	assert.Equal(t, 5.0, metricValue(t, output, `test_unit_stage_attempts_total{stage="llm"}`))
}

func TestRegisterCounter_DuplicateSharesFamily(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("dup_total", "help").WithLabelValues().Inc()
	c.RegisterCounter("dup_total", "help").WithLabelValues().Inc()

	assert.Equal(t, 2.0, metricValue(t, scrapeMetrics(t, c), "test_unit_dup_total"))
}

func TestRegisterGauge(t *testing.T) {
	c := newTestCollector(t)
	g := c.RegisterGauge("dataset_records", "help", "nucleus").WithLabelValues("13C")
	g.Set(10)
	g.Inc()
	g.Add(2)
	g.Dec()

	assert.Equal(t, 12.0, metricValue(t, scrapeMetrics(t, c), `test_unit_dataset_records{nucleus="13C"}`))
}

func TestRegisterHistogram_DefaultBuckets(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterHistogram("latency", "help", nil).WithLabelValues().Observe(0.1)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "test_unit_latency_bucket")
	assert.Equal(t, 1.0, metricValue(t, output, "test_unit_latency_count"))
}

func TestTimer_MeasuresDuration(t *testing.T) {
	c := newTestCollector(t)
	timer := NewTimer(c.RegisterHistogram("timer", "help", nil).WithLabelValues())
	time.Sleep(5 * time.Millisecond)
	d := timer.ObserveDuration()

	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	assert.Equal(t, 1.0, metricValue(t, scrapeMetrics(t, c), "test_unit_timer_count"))
}

func TestConcurrentRegistration(t *testing.T) {
	c := newTestCollector(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RegisterCounter("concurrent_total", "help", "id").WithLabelValues("1").Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, metricValue(t, scrapeMetrics(t, c), `test_unit_concurrent_total{id="1"}`))
}

func TestTypeConflict_FallsBackToNoop(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("conflict", "help").WithLabelValues().Inc()

	gauge := c.RegisterGauge("conflict", "help")
	assert.NotPanics(t, func() { gauge.WithLabelValues().Set(10) })

	assert.Contains(t, scrapeMetrics(t, c), "# TYPE test_unit_conflict counter")
}

func TestMustRegisterAndUnregister(t *testing.T) {
	c := newTestCollector(t)
	pc := prometheus.NewCounter(prometheus.CounterOpts{Name: "custom_collector"})
	c.MustRegister(pc)
	assert.Contains(t, scrapeMetrics(t, c), "custom_collector")

	assert.True(t, c.Unregister(pc))
	assert.NotContains(t, scrapeMetrics(t, c), "custom_collector")
}

func TestNopCollector(t *testing.T) {
	c := NewNopCollector()
	assert.NotPanics(t, func() {
		c.RegisterCounter("a", "h").WithLabelValues("x").Inc()
		c.RegisterGauge("b", "h").WithLabelValues().Set(1)
		c.RegisterHistogram("c", "h", nil).WithLabelValues().Observe(1)
	})
	assert.False(t, c.Unregister(prometheus.NewCounter(prometheus.CounterOpts{Name: "x"})))
}
