package metrics

import (
	"time"

	"mercator-hq/apilog/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every Prometheus metric exported by apilog.
//
// All methods are safe to call on a nil *Collector and on a collector whose
// configuration has metrics disabled; both cases are no-ops. This lets
// components take an optional collector without nil checks.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	capture   *CaptureMetrics
	retention *RetentionMetrics
	http      *HTTPMetrics
}

// NewCollector creates a collector and registers its metrics with registry.
// If registry is nil, a new registry is created.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle("/metrics", collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.SweepDurationBuckets) == 0 {
		cfg.SweepDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300}
	}

	return &Collector{
		config:    cfg,
		registry:  registry,
		capture:   NewCaptureMetrics(cfg, registry),
		retention: NewRetentionMetrics(cfg, registry),
		http:      NewHTTPMetrics(cfg, registry),
	}
}

// Registry returns the Prometheus registry used by the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordCaptureEnqueued records a record accepted by the capture queue.
func (c *Collector) RecordCaptureEnqueued() {
	if !c.enabled() {
		return
	}
	c.capture.enqueued.Inc()
}

// RecordCaptureDropped records a queued record discarded on overflow.
func (c *Collector) RecordCaptureDropped() {
	if !c.enabled() {
		return
	}
	c.capture.dropped.Inc()
}

// RecordCapturePersisted records a successful store insert.
func (c *Collector) RecordCapturePersisted(duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.capture.persisted.Inc()
	c.capture.persistDuration.Observe(duration.Seconds())
}

// RecordCapturePersistFailure records a failed store insert.
func (c *Collector) RecordCapturePersistFailure() {
	if !c.enabled() {
		return
	}
	c.capture.persistFailures.Inc()
}

// RecordCaptureFailure records a failure while building a record.
func (c *Collector) RecordCaptureFailure() {
	if !c.enabled() {
		return
	}
	c.capture.buildFailures.Inc()
}

// SetCaptureQueueDepth updates the current capture queue length.
func (c *Collector) SetCaptureQueueDepth(depth int) {
	if !c.enabled() {
		return
	}
	c.capture.queueDepth.Set(float64(depth))
}

// RecordSweep records the outcome of a retention sweep.
//
// Parameters:
//   - trigger: "scheduled" or "manual"
//   - outcome: "completed", "skipped_disabled", "skipped_empty", "failed", "rejected"
//   - deleted: records removed by the sweep
//   - batches: delete rounds executed
//   - duration: wall time of the sweep
func (c *Collector) RecordSweep(trigger, outcome string, deleted int64, batches int, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.retention.sweeps.WithLabelValues(trigger, outcome).Inc()
	if deleted > 0 {
		c.retention.deleted.Add(float64(deleted))
	}
	if batches > 0 {
		c.retention.batches.Add(float64(batches))
	}
	if outcome != "rejected" {
		c.retention.duration.WithLabelValues(trigger).Observe(duration.Seconds())
		c.retention.lastSweep.SetToCurrentTime()
	}
}

// RecordHTTPRequest records a request served by the audit API.
func (c *Collector) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.http.requests.WithLabelValues(route, method, statusClass(status)).Inc()
	c.http.duration.WithLabelValues(route, method).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
