package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/apilog/pkg/config"
)

// Trigger decides when scheduled sweeps happen.
type Trigger interface {
	// Start begins calling fire. It must not block.
	Start(fire func()) error

	// Stop stops firing and waits for an in-flight fire to return.
	Stop()

	// Next returns the next planned fire time, or nil if unknown.
	Next() *time.Time
}

// Rescheduler is implemented by triggers whose schedule can change at
// runtime.
type Rescheduler interface {
	Reschedule(expr string) error
}

// CronTrigger fires on a cron schedule.
//
// Accepted expressions:
//   - "0 2 * * *"     - daily at 02:00
//   - "*/30 * * * * *" - every 30 seconds (leading seconds field)
//   - "@daily"        - descriptor form
type CronTrigger struct {
	mu      sync.Mutex
	cron    *cron.Cron
	expr    string
	entry   cron.EntryID
	fire    func()
	running bool
	logger  *slog.Logger
}

// NewCronTrigger validates expr and returns a stopped trigger.
func NewCronTrigger(expr string) (*CronTrigger, error) {
	if _, err := config.CronParser.Parse(expr); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return &CronTrigger{
		cron:   cron.New(cron.WithParser(config.CronParser)),
		expr:   expr,
		logger: slog.Default().With("component", "audit.scheduler"),
	}, nil
}

// Start registers fire and starts the cron loop.
func (t *CronTrigger) Start(fire func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}

	id, err := t.cron.AddFunc(t.expr, fire)
	if err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	t.entry = id
	t.fire = fire
	t.cron.Start()
	t.running = true
	return nil
}

// Reschedule replaces the schedule. On a stopped trigger it only records the
// new expression.
func (t *CronTrigger) Reschedule(expr string) error {
	if _, err := config.CronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if expr == t.expr {
		return nil
	}
	if t.running {
		id, err := t.cron.AddFunc(expr, t.fire)
		if err != nil {
			return fmt.Errorf("failed to reschedule cleanup: %w", err)
		}
		t.cron.Remove(t.entry)
		t.entry = id
	}

	t.logger.Info("cleanup schedule changed", "old_schedule", t.expr, "new_schedule", expr)
	t.expr = expr
	return nil
}

// Stop stops the cron loop, waits for a running sweep to finish and
// unregisters the entry so that a later Start schedules it once.
func (t *CronTrigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.cron.Remove(t.entry)
	t.entry = 0
	t.running = false
}

// Next returns the next scheduled fire time.
func (t *CronTrigger) Next() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	next := t.cron.Entry(t.entry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// Expression returns the current cron expression.
func (t *CronTrigger) Expression() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expr
}

// ManualTrigger fires only when Fire is called. It lets tests drive the
// scheduled path deterministically.
type ManualTrigger struct {
	mu   sync.Mutex
	fire func()
}

// Start records fire.
func (t *ManualTrigger) Start(fire func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fire = fire
	return nil
}

// Stop forgets the registered callback.
func (t *ManualTrigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fire = nil
}

// Next always returns nil.
func (t *ManualTrigger) Next() *time.Time {
	return nil
}

// Fire runs the registered callback synchronously. It reports false when the
// trigger is not started.
func (t *ManualTrigger) Fire() bool {
	t.mu.Lock()
	fire := t.fire
	t.mu.Unlock()

	if fire == nil {
		return false
	}
	fire()
	return true
}

// Scheduler runs the cleaner whenever its trigger fires and exposes the
// manual path. Both paths share the cleaner's single-flight gate.
type Scheduler struct {
	cleaner *Cleaner
	trigger Trigger
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a scheduler.
func NewScheduler(cleaner *Cleaner, trigger Trigger) *Scheduler {
	return &Scheduler{
		cleaner: cleaner,
		trigger: trigger,
		logger:  slog.Default().With("component", "audit.scheduler"),
	}
}

// Start begins scheduled sweeps. Sweeps run with a context derived from ctx;
// cancelling ctx stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	if err := s.trigger.Start(func() { s.runScheduled(sweepCtx) }); err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.running = true

	policy := s.cleaner.Policy().Current()
	s.logger.Info("retention scheduler started",
		"schedule", policy.CronExpression,
		"retention_days", policy.RetentionDays,
		"batch_size", policy.BatchSize,
		"enabled", policy.Enabled,
	)

	go func() {
		<-sweepCtx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	result := s.cleaner.Sweep(ctx, TriggerScheduled)
	if result.Outcome == OutcomeRejected {
		s.logger.Warn("scheduled cleanup skipped, previous sweep still running")
	}
}

// Stop cancels running sweeps and stops the trigger.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.trigger.Stop()
	s.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether scheduled sweeps are active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow runs a sweep immediately.
func (s *Scheduler) RunNow(ctx context.Context, trigger string) SweepResult {
	s.logger.InfoContext(ctx, "cleanup triggered", "trigger", trigger)
	return s.cleaner.Sweep(ctx, trigger)
}

// NextRun returns the next scheduled sweep time, or nil.
func (s *Scheduler) NextRun() *time.Time {
	return s.trigger.Next()
}

// Stats returns the cleaner statistics with the next run filled in.
func (s *Scheduler) Stats(ctx context.Context) (*CleanupStats, error) {
	stats, err := s.cleaner.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats.NextRun = s.NextRun()
	return stats, nil
}

// UpdatePolicy swaps the policy used by future sweeps and moves the schedule
// when the cron expression changed. A running sweep keeps its snapshot.
func (s *Scheduler) UpdatePolicy(p Policy) error {
	source := s.cleaner.Policy()
	old := source.Current()
	if err := source.Update(p); err != nil {
		return err
	}

	if p.CronExpression != old.CronExpression {
		if r, ok := s.trigger.(Rescheduler); ok {
			if err := r.Reschedule(p.CronExpression); err != nil {
				return err
			}
		}
	}

	s.logger.Info("retention policy updated",
		"enabled", p.Enabled,
		"retention_days", p.RetentionDays,
		"batch_size", p.BatchSize,
		"schedule", p.CronExpression,
	)
	return nil
}
