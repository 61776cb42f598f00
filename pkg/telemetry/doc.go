// Package telemetry groups the observability packages of apilog.
//
// # Components
//
//   - logging: slog setup with JSON/text output and log file rotation
//   - metrics: Prometheus metrics for capture, retention and the query API
//   - tracing: OpenTelemetry tracing with OTLP/gRPC export
//   - health: liveness and readiness endpoints
//
// # Usage
//
//	closer, _ := logging.Setup(&cfg.Telemetry.Logging)
//	defer closer.Close()
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	tracer, _ := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(context.Background())
package telemetry
