package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/apilog/pkg/audit"
	"mercator-hq/apilog/pkg/telemetry/logging"
	"mercator-hq/apilog/pkg/telemetry/metrics"
	"mercator-hq/apilog/pkg/telemetry/tracing"
)

// Sweep triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Outcome describes how a sweep ended.
type Outcome string

// Sweep outcomes.
const (
	OutcomeRejected        Outcome = "rejected"
	OutcomeSkippedDisabled Outcome = "skipped_disabled"
	OutcomeSkippedEmpty    Outcome = "skipped_empty"
	OutcomeCompleted       Outcome = "completed"
	OutcomeFailed          Outcome = "failed"
)

var errNoProgress = errors.New("batch deleted no records")

// SweepResult reports a single sweep. Failures are carried in Err; batches
// deleted before a failure stay deleted and are counted in Deleted.
type SweepResult struct {
	Outcome   Outcome
	Trigger   string
	Cutoff    time.Time
	Matched   int64
	Deleted   int64
	Batches   int
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Success reports whether the sweep ran to an orderly end.
func (r SweepResult) Success() bool {
	return r.Outcome != OutcomeRejected && r.Outcome != OutcomeFailed
}

// SweepSummary is the JSON view of a SweepResult.
type SweepSummary struct {
	Outcome    Outcome   `json:"outcome"`
	Trigger    string    `json:"trigger"`
	Cutoff     time.Time `json:"cutoffDate"`
	Deleted    int64     `json:"deletedCount"`
	Batches    int       `json:"batches"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
}

// Summary returns the JSON view of the result.
func (r SweepResult) Summary() *SweepSummary {
	s := &SweepSummary{
		Outcome:    r.Outcome,
		Trigger:    r.Trigger,
		Cutoff:     r.Cutoff,
		Deleted:    r.Deleted,
		Batches:    r.Batches,
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// CleanupStats describes the retention state without modifying anything.
type CleanupStats struct {
	RetentionDays  int           `json:"retentionDays"`
	CutoffDate     time.Time     `json:"cutoffDate"`
	LogsToDelete   int64         `json:"logsToDelete"`
	CleanupEnabled bool          `json:"cleanupEnabled"`
	BatchSize      int           `json:"batchSize"`
	Schedule       string        `json:"schedule"`
	SweepRunning   bool          `json:"sweepRunning"`
	LastSweep      *SweepSummary `json:"lastSweep,omitempty"`
	NextRun        *time.Time    `json:"nextRun,omitempty"`
}

// Cleaner deletes records older than the retention window in batches. At
// most one sweep runs at a time; concurrent triggers are rejected.
type Cleaner struct {
	store   audit.Store
	policy  *PolicySource
	metrics *metrics.Collector
	now     func() time.Time
	logger  *slog.Logger

	running  sync.Mutex
	sweeping atomic.Bool

	mu   sync.RWMutex
	last *SweepResult
}

// NewCleaner creates a cleaner reading its policy from source.
func NewCleaner(store audit.Store, source *PolicySource, collector *metrics.Collector) *Cleaner {
	return &Cleaner{
		store:   store,
		policy:  source,
		metrics: collector,
		now:     time.Now,
		logger:  slog.Default().With("component", "audit.retention"),
	}
}

// Policy returns the policy source.
func (c *Cleaner) Policy() *PolicySource {
	return c.policy
}

// Running reports whether a sweep is in progress.
func (c *Cleaner) Running() bool {
	return c.sweeping.Load()
}

// LastSweep returns the most recent sweep that was not rejected, or nil.
func (c *Cleaner) LastSweep() *SweepResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return nil
	}
	last := *c.last
	return &last
}

// Sweep runs one cleanup. It never panics on store failures; the outcome and
// any error are reported in the result.
func (c *Cleaner) Sweep(ctx context.Context, trigger string) SweepResult {
	ctx = logging.WithTrigger(ctx, trigger)

	if !c.running.TryLock() {
		c.logger.WarnContext(ctx, "cleanup already in progress, rejecting trigger")
		c.metrics.RecordSweep(trigger, string(OutcomeRejected), 0, 0, 0)
		return SweepResult{
			Outcome:   OutcomeRejected,
			Trigger:   trigger,
			StartedAt: c.now(),
			Err:       audit.ErrSweepInProgress,
		}
	}
	defer c.running.Unlock()

	c.sweeping.Store(true)
	defer c.sweeping.Store(false)

	policy := c.policy.Current()
	result := SweepResult{Trigger: trigger, StartedAt: c.now()}

	ctx, span := tracing.Start(ctx, "retention.sweep",
		attribute.String("retention.trigger", trigger),
		attribute.Int("retention.days", policy.RetentionDays),
		attribute.Int("retention.batch_size", policy.BatchSize),
	)
	defer span.End()

	c.run(ctx, policy, &result)

	result.Duration = c.now().Sub(result.StartedAt)
	span.SetAttributes(
		attribute.String("retention.outcome", string(result.Outcome)),
		attribute.Int64("retention.deleted", result.Deleted),
		attribute.Int("retention.batches", result.Batches),
	)
	tracing.SetStatus(span, result.Err)
	c.metrics.RecordSweep(trigger, string(result.Outcome), result.Deleted, result.Batches, result.Duration)

	c.mu.Lock()
	last := result
	c.last = &last
	c.mu.Unlock()

	return result
}

func (c *Cleaner) run(ctx context.Context, policy Policy, result *SweepResult) {
	if !policy.Enabled {
		result.Outcome = OutcomeSkippedDisabled
		c.logger.InfoContext(ctx, "log cleanup is disabled, skipping")
		return
	}

	cutoff := policy.Cutoff(result.StartedAt)
	result.Cutoff = cutoff

	matched, err := c.store.Count(ctx, &audit.Filter{Before: &cutoff})
	if err != nil {
		c.fail(ctx, result, "count", 0, err)
		return
	}
	result.Matched = matched
	if matched == 0 {
		result.Outcome = OutcomeSkippedEmpty
		c.logger.InfoContext(ctx, "no records older than cutoff, skipping", "cutoff", cutoff)
		return
	}

	c.logger.InfoContext(ctx, "starting log cleanup",
		"cutoff", cutoff,
		"matched", matched,
		"batch_size", policy.BatchSize,
	)

	for batch := 1; ; batch++ {
		if err := ctx.Err(); err != nil {
			c.fail(ctx, result, "fetch", batch, err)
			return
		}

		records, err := c.store.Find(ctx, &audit.Filter{Before: &cutoff, Limit: policy.BatchSize})
		if err != nil {
			c.fail(ctx, result, "fetch", batch, err)
			return
		}
		if len(records) == 0 {
			break
		}

		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}

		deleted, err := c.store.DeleteByIDs(ctx, ids)
		if err != nil {
			c.fail(ctx, result, "delete", batch, err)
			return
		}
		result.Deleted += deleted
		result.Batches++
		if deleted == 0 {
			c.fail(ctx, result, "delete", batch, errNoProgress)
			return
		}

		c.logger.DebugContext(ctx, "deleted batch", "batch", batch, "deleted", deleted)

		if len(records) < policy.BatchSize {
			break
		}
	}

	result.Outcome = OutcomeCompleted
	c.logger.InfoContext(ctx, "log cleanup completed",
		"cutoff", cutoff,
		"deleted", result.Deleted,
		"batches", result.Batches,
	)
}

func (c *Cleaner) fail(ctx context.Context, result *SweepResult, phase string, batch int, err error) {
	result.Outcome = OutcomeFailed
	result.Err = &audit.CleanupError{Phase: phase, Cutoff: result.Cutoff, Batch: batch, Cause: err}
	c.logger.ErrorContext(ctx, "log cleanup failed",
		"phase", phase,
		"cutoff", result.Cutoff,
		"batch", batch,
		"deleted_before_failure", result.Deleted,
		"error", err,
	)
}

// Stats reports the current policy and how many records it would delete now.
func (c *Cleaner) Stats(ctx context.Context) (*CleanupStats, error) {
	policy := c.policy.Current()
	cutoff := policy.Cutoff(c.now())

	count, err := c.store.Count(ctx, &audit.Filter{Before: &cutoff})
	if err != nil {
		return nil, audit.NewQueryError("cleanup_stats", err)
	}

	stats := &CleanupStats{
		RetentionDays:  policy.RetentionDays,
		CutoffDate:     cutoff,
		LogsToDelete:   count,
		CleanupEnabled: policy.Enabled,
		BatchSize:      policy.BatchSize,
		Schedule:       policy.CronExpression,
		SweepRunning:   c.Running(),
	}
	if last := c.LastSweep(); last != nil {
		stats.LastSweep = last.Summary()
	}
	return stats, nil
}
