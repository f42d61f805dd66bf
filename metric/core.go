package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level metrics shared by every blockflow
// process. Domain packages register their own collectors through
// MetricsRegistry.
type Metrics struct {
	// Component metrics
	ComponentStatus *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec

	// Device metrics
	DeviceCommands *prometheus.CounterVec
	DeviceLatency  *prometheus.HistogramVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "blockflow",
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"component"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "blockflow",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by component and error class",
			},
			[]string{"component", "class"},
		),

		DeviceCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "blockflow",
				Subsystem: "device",
				Name:      "commands_total",
				Help:      "Total number of device commands sent",
			},
			[]string{"transport", "command", "status"}, // status: ok, rejected, error
		),

		DeviceLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "blockflow",
				Subsystem: "device",
				Name:      "command_duration_seconds",
				Help:      "Device command round trip in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"transport", "command"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "blockflow",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "blockflow",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "blockflow",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordComponentStatus updates the component status metric
func (c *Metrics) RecordComponentStatus(component string, status int) {
	c.ComponentStatus.WithLabelValues(component).Set(float64(status))
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, class string) {
	c.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// RecordDeviceCommand counts one device command and observes its latency
func (c *Metrics) RecordDeviceCommand(transport, command, status string, duration time.Duration) {
	c.DeviceCommands.WithLabelValues(transport, command, status).Inc()
	c.DeviceLatency.WithLabelValues(transport, command).Observe(duration.Seconds())
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}
