package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/apilog/pkg/audit"
	"mercator-hq/apilog/pkg/config"
	"mercator-hq/apilog/pkg/telemetry/metrics"
)

// RecorderConfig configures asynchronous record persistence.
type RecorderConfig struct {
	// QueueSize is the capacity of the pending record queue.
	QueueSize int

	// Workers is the number of goroutines writing to the store.
	Workers int

	// WriteTimeout bounds a single store insert.
	WriteTimeout time.Duration
}

// RecorderConfigFrom builds a RecorderConfig from the capture configuration.
func RecorderConfigFrom(cfg *config.CaptureConfig) *RecorderConfig {
	return &RecorderConfig{
		QueueSize:    cfg.QueueSize,
		Workers:      cfg.Workers,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func (c *RecorderConfig) withDefaults() *RecorderConfig {
	out := RecorderConfig{}
	if c != nil {
		out = *c
	}
	if out.QueueSize <= 0 {
		out.QueueSize = config.DefaultCaptureQueueSize
	}
	if out.Workers <= 0 {
		out.Workers = config.DefaultCaptureWorkers
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = config.DefaultCaptureWriteTimeout
	}
	return &out
}

// Recorder persists captured records in the background so that capture never
// blocks the request path. When the queue is full the oldest pending record
// is discarded to make room for the new one.
type Recorder struct {
	store   audit.Store
	config  *RecorderConfig
	metrics *metrics.Collector
	logger  *slog.Logger

	// mu guards closed and the queue's lifetime: Submit holds the read lock
	// while sending, Close takes the write lock before closing the channel.
	mu     sync.RWMutex
	closed bool
	queue  chan *audit.Record

	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewRecorder creates a recorder and starts its workers.
func NewRecorder(store audit.Store, cfg *RecorderConfig, collector *metrics.Collector) *Recorder {
	r := newRecorder(store, cfg, collector)
	r.start()
	return r
}

// newRecorder creates a recorder without starting workers.
func newRecorder(store audit.Store, cfg *RecorderConfig, collector *metrics.Collector) *Recorder {
	cfg = cfg.withDefaults()
	return &Recorder{
		store:   store,
		config:  cfg,
		metrics: collector,
		logger:  slog.Default().With("component", "audit.capture"),
		queue:   make(chan *audit.Record, cfg.QueueSize),
	}
}

func (r *Recorder) start() {
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	r.logger.Info("capture recorder started",
		"queue_size", r.config.QueueSize,
		"workers", r.config.Workers,
		"write_timeout", r.config.WriteTimeout,
	)
}

// Submit queues a record for persistence. It never blocks on the store.
func (r *Recorder) Submit(record *audit.Record) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return audit.ErrRecorderClosed
	}

	for {
		select {
		case r.queue <- record:
			r.metrics.RecordCaptureEnqueued()
			r.metrics.SetCaptureQueueDepth(len(r.queue))
			return nil
		default:
		}

		// Queue full: evict the oldest pending record and retry.
		select {
		case old := <-r.queue:
			total := r.dropped.Add(1)
			r.metrics.RecordCaptureDropped()
			r.logger.Warn("capture queue full, dropped oldest record",
				"endpoint", old.Endpoint,
				"method", old.Method,
				"dropped_total", total,
			)
		default:
		}
	}
}

// Dropped returns the number of records discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Pending returns the number of queued records not yet handed to a worker.
func (r *Recorder) Pending() int {
	return len(r.queue)
}

// Close stops accepting records, persists everything still queued and waits
// for the workers to exit. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pending := len(r.queue)
	close(r.queue)
	r.mu.Unlock()

	r.logger.Info("draining capture queue before shutdown", "pending_count", pending)
	r.wg.Wait()
	r.logger.Info("capture queue drained", "dropped_total", r.Dropped())
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for record := range r.queue {
		r.metrics.SetCaptureQueueDepth(len(r.queue))
		r.persist(record)
	}
}

// persist writes a single record to the store.
func (r *Recorder) persist(record *audit.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.store.Insert(ctx, record); err != nil {
		r.metrics.RecordCapturePersistFailure()
		r.logger.Error("failed to persist audit record",
			"error", &audit.CaptureError{Stage: "persist", Endpoint: record.Endpoint, Cause: err},
			"method", record.Method,
			"status", record.ResponseStatus,
		)
		return
	}

	duration := time.Since(start)
	r.metrics.RecordCapturePersisted(duration)
	r.logger.Debug("audit record persisted",
		"record_id", record.ID,
		"endpoint", record.Endpoint,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit record write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
