package metrics

import (
	"mercator-hq/apilog/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics tracks the async capture pipeline.
//
// Metrics:
//   - apilog_capture_enqueued_total: Records accepted by the queue
//   - apilog_capture_dropped_total: Records discarded because the queue was full
//   - apilog_capture_persisted_total: Records written to the store
//   - apilog_capture_persist_failures_total: Store inserts that failed
//   - apilog_capture_build_failures_total: Exchanges that could not be turned into records
//   - apilog_capture_queue_depth: Current queue length
//   - apilog_capture_persist_duration_seconds: Store insert latency
type CaptureMetrics struct {
	enqueued        prometheus.Counter
	dropped         prometheus.Counter
	persisted       prometheus.Counter
	persistFailures prometheus.Counter
	buildFailures   prometheus.Counter
	queueDepth      prometheus.Gauge
	persistDuration prometheus.Histogram
}

// NewCaptureMetrics creates and registers capture metrics with the provided registry.
func NewCaptureMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CaptureMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	cm := &CaptureMetrics{
		enqueued:        counter("capture_enqueued_total", "Total number of audit records accepted by the capture queue"),
		dropped:         counter("capture_dropped_total", "Total number of audit records dropped because the capture queue was full"),
		persisted:       counter("capture_persisted_total", "Total number of audit records written to the store"),
		persistFailures: counter("capture_persist_failures_total", "Total number of audit record inserts that failed"),
		buildFailures:   counter("capture_build_failures_total", "Total number of exchanges that could not be turned into audit records"),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "capture_queue_depth",
			Help:      "Current number of audit records waiting to be persisted",
		}),
		persistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "capture_persist_duration_seconds",
			Help:      "Duration of audit record inserts in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	registry.MustRegister(
		cm.enqueued,
		cm.dropped,
		cm.persisted,
		cm.persistFailures,
		cm.buildFailures,
		cm.queueDepth,
		cm.persistDuration,
	)

	return cm
}
