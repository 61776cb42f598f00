// Package metrics provides Prometheus metrics collection for apilog.
//
// # Metrics Categories
//
//   - Capture Metrics: queue depth, enqueued, dropped and persisted records
//   - Retention Metrics: sweeps by outcome, deleted records, sweep duration
//   - HTTP Metrics: audit API request count and latency
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordSweep("scheduled", "completed", 120, 1, 350*time.Millisecond)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// A nil *Collector is valid and records nothing.
package metrics
