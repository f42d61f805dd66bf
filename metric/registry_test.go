package metric

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/blockflow/errors"
)

func gatheredNames(t *testing.T, registry *MetricsRegistry) []string {
	t.Helper()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.Same(t, registry.Metrics, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterEachKind(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "c"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "g"})
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_histogram", Help: "h"})
	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_counter_vec", Help: "cv"}, []string{"kind"})
	gaugeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_gauge_vec", Help: "gv"}, []string{"kind"})
	histogramVec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_histogram_vec", Help: "hv"}, []string{"kind"})

	require.NoError(t, registry.RegisterCounter("svc", "counter", counter))
	require.NoError(t, registry.RegisterGauge("svc", "gauge", gauge))
	require.NoError(t, registry.RegisterHistogram("svc", "histogram", histogram))
	require.NoError(t, registry.RegisterCounterVec("svc", "counter_vec", counterVec))
	require.NoError(t, registry.RegisterGaugeVec("svc", "gauge_vec", gaugeVec))
	require.NoError(t, registry.RegisterHistogramVec("svc", "histogram_vec", histogramVec))

	counter.Inc()
	gauge.Set(42)
	histogram.Observe(1.5)
	counterVec.WithLabelValues("Speak").Inc()
	gaugeVec.WithLabelValues("Speak").Set(1)
	histogramVec.WithLabelValues("Speak").Observe(0.1)

	names := gatheredNames(t, registry)
	for _, want := range []string{
		"test_counter", "test_gauge", "test_histogram",
		"test_counter_vec", "test_gauge_vec", "test_histogram_vec",
	} {
		assert.Contains(t, names, want)
	}
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{Name: "duplicate_counter", Help: "same"})
	counter2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "duplicate_counter", Help: "same"})

	require.NoError(t, registry.RegisterCounter("service1", "duplicate_counter", counter1))

	// same key is caught by our own tracking
	err := registry.RegisterCounter("service1", "duplicate_counter", counter2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "duplicate metric registration")

	// different key, same Prometheus name
	err = registry.RegisterCounter("service2", "duplicate_counter", counter2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestMetricsRegistry_UnregisterMetric(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "unregister_counter", Help: "u"})
	require.NoError(t, registry.RegisterCounter("test-service", "unregister_counter", counter))
	assert.Contains(t, gatheredNames(t, registry), "unregister_counter")

	assert.True(t, registry.Unregister("test-service", "unregister_counter"))
	assert.NotContains(t, gatheredNames(t, registry), "unregister_counter")

	assert.False(t, registry.Unregister("test-service", "unregister_counter"))

	// the key is free again
	require.NoError(t, registry.RegisterCounter("test-service", "unregister_counter", counter))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	numGoroutines := 10

	for i := range numGoroutines {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", id),
				Help: "A concurrent counter",
			})
			assert.NoError(t, registry.RegisterCounter("concurrent-service",
				fmt.Sprintf("concurrent_counter_%d", id), counter))
		}(i)
	}
	wg.Wait()

	count := 0
	for _, name := range gatheredNames(t, registry) {
		if strings.HasPrefix(name, "concurrent_counter_") {
			count++
		}
	}
	assert.Equal(t, numGoroutines, count, "All concurrent counters should be registered")
}

func TestCoreMetrics_RecordMethods(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	core.RecordComponentStatus("runner", 2)
	core.RecordError("runner", "transient")
	core.RecordError("runner", "transient")
	core.RecordDeviceCommand("http", "servo", "ok", 15*time.Millisecond)
	core.RecordNATSStatus(true)
	core.RecordNATSReconnect()
	core.RecordCircuitBreakerState(1)

	assert.Equal(t, float64(2), testutil.ToFloat64(core.ComponentStatus.WithLabelValues("runner")))
	assert.Equal(t, float64(2), testutil.ToFloat64(core.ErrorsTotal.WithLabelValues("runner", "transient")))
	assert.Equal(t, float64(1), testutil.ToFloat64(core.DeviceCommands.WithLabelValues("http", "servo", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(core.DeviceLatency))
	assert.Equal(t, float64(1), testutil.ToFloat64(core.NATSConnected))
	assert.Equal(t, float64(1), testutil.ToFloat64(core.NATSReconnects))
	assert.Equal(t, float64(1), testutil.ToFloat64(core.NATSCircuitBreaker))

	core.RecordNATSStatus(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(core.NATSConnected))

	names := gatheredNames(t, registry)
	assert.Contains(t, names, "blockflow_component_status")
	assert.Contains(t, names, "blockflow_device_commands_total")
	assert.Contains(t, names, "go_goroutines")
}

func TestMetricsRegistry_CounterTotals(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	core.RecordDeviceCommand("http", "servo", "ok", time.Millisecond)
	core.RecordDeviceCommand("http", "speak", "ok", time.Millisecond)
	core.RecordDeviceCommand("nats", "servo", "error", time.Millisecond)
	core.RecordError("runner", "transient")

	totals, err := registry.CounterTotals("blockflow_device")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"blockflow_device_commands_total": 3}, totals)

	all, err := registry.CounterTotals("blockflow_")
	require.NoError(t, err)
	assert.Equal(t, float64(1), all["blockflow_errors_total"])
	assert.NotContains(t, all, "blockflow_component_status", "gauges are skipped")
}
