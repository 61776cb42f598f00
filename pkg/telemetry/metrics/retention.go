package metrics

import (
	"mercator-hq/apilog/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RetentionMetrics tracks retention sweeps.
//
// Metrics:
//   - apilog_retention_sweeps_total: Sweeps by trigger and outcome
//   - apilog_retention_deleted_records_total: Records removed by sweeps
//   - apilog_retention_batches_total: Delete rounds executed
//   - apilog_retention_sweep_duration_seconds: Sweep duration histogram
//   - apilog_retention_last_sweep_timestamp_seconds: Unix time of the last finished sweep
type RetentionMetrics struct {
	sweeps    *prometheus.CounterVec
	deleted   prometheus.Counter
	batches   prometheus.Counter
	duration  *prometheus.HistogramVec
	lastSweep prometheus.Gauge
}

// NewRetentionMetrics creates and registers retention metrics with the provided registry.
func NewRetentionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RetentionMetrics {
	rm := &RetentionMetrics{
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_sweeps_total",
				Help:      "Total number of retention sweeps by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),

		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "retention_deleted_records_total",
			Help:      "Total number of audit records deleted by retention sweeps",
		}),

		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "retention_batches_total",
			Help:      "Total number of retention delete rounds",
		}),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_sweep_duration_seconds",
				Help:      "Duration of retention sweeps in seconds",
				Buckets:   cfg.SweepDurationBuckets,
			},
			[]string{"trigger"},
		),

		lastSweep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "retention_last_sweep_timestamp_seconds",
			Help:      "Unix timestamp of the last finished retention sweep",
		}),
	}

	registry.MustRegister(
		rm.sweeps,
		rm.deleted,
		rm.batches,
		rm.duration,
		rm.lastSweep,
	)

	return rm
}
