// Package metric provides Prometheus-based metrics collection and an HTTP
// server for blockflow processes.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: platform-level metrics registered automatically (Metrics type)
//  2. Component Registry: registration for component-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: /metrics in Prometheus format plus a /health endpoint (Server type)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	server.AddHealthCheck("nats", func(ctx context.Context) error {
//	    return natsClient.Ping(ctx)
//	})
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        slog.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop(context.Background())
//
// # Core Metrics
//
// All core metrics use the namespace "blockflow":
//
//   - blockflow_component_status{component}
//   - blockflow_errors_total{component, class}
//   - blockflow_device_commands_total{transport, command, status}
//   - blockflow_device_command_duration_seconds{transport, command}
//   - blockflow_nats_connected, blockflow_nats_reconnects_total, blockflow_nats_circuit_breaker
//
// The Go runtime and process collectors are registered as well.
//
// # Component Metrics
//
// Components create their collectors and register them under a component
// name. Registration fails with an invalid-class error when the same
// component and metric name pair, or the same Prometheus name, is already
// taken:
//
//	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
//	    Namespace: "blockflow",
//	    Subsystem: "interpreter",
//	    Name:      "runs_total",
//	    Help:      "Total number of program runs by final status",
//	}, []string{"status"})
//	if err := registry.RegisterCounterVec("interpreter", "runs_total", runs); err != nil {
//	    return err
//	}
//
// # Health
//
// /health runs every registered HealthCheck with a two second budget and
// answers 200 with {"status":"healthy"} or 503 with the failing checks.
package metric
