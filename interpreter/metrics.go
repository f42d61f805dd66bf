package interpreter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/blockflow/metric"
)

// runnerMetrics holds Prometheus metrics for program execution
type runnerMetrics struct {
	runsTotal     *prometheus.CounterVec   // By status (completed/cancelled/failed)
	blocksTotal   *prometheus.CounterVec   // By kind
	blockErrors   *prometheus.CounterVec   // By kind and error class
	blockDuration *prometheus.HistogramVec // By kind
	runDuration   prometheus.Histogram
	running       prometheus.Gauge
}

// newRunnerMetrics creates and registers interpreter metrics with the provided registry
func newRunnerMetrics(registry *metric.MetricsRegistry) (*runnerMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &runnerMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockflow",
			Subsystem: "interpreter",
			Name:      "runs_total",
			Help:      "Total number of program runs by final status",
		}, []string{"status"}),

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blockflow",
			Subsystem: "interpreter",
			Name:      "run_duration_seconds",
			Help:      "Program run duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),

		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blockflow",
			Subsystem: "interpreter",
			Name:      "running",
			Help:      "Whether a program is currently running (0/1)",
		}),

		blocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockflow",
			Subsystem: "interpreter",
			Name:      "blocks_executed_total",
			Help:      "Total number of action blocks executed",
		}, []string{"kind"}),

		blockErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockflow",
			Subsystem: "interpreter",
			Name:      "block_errors_total",
			Help:      "Total number of errors returned by action blocks",
		}, []string{"kind", "class"}),

		blockDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blockflow",
			Subsystem: "interpreter",
			Name:      "block_duration_seconds",
			Help:      "Action block execution duration in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		}, []string{"kind"}),
	}

	if err := registry.RegisterCounterVec("interpreter", "runs_total", m.runsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("interpreter", "run_duration", m.runDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("interpreter", "running", m.running); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("interpreter", "blocks_executed_total", m.blocksTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("interpreter", "block_errors_total", m.blockErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("interpreter", "block_duration", m.blockDuration); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *runnerMetrics) runStarted() {
	if m == nil {
		return
	}
	m.running.Set(1)
}

func (m *runnerMetrics) runFinished(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.running.Set(0)
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
}

func (m *runnerMetrics) recordBlock(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.blocksTotal.WithLabelValues(kind).Inc()
	m.blockDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *runnerMetrics) recordError(kind, class string) {
	if m == nil {
		return
	}
	m.blockErrors.WithLabelValues(kind, class).Inc()
}
