package retention

import (
	"context"
	"testing"
	"time"
)

func TestCronTrigger_Lifecycle(t *testing.T) {
	tests := []struct {
		name      string
		schedule  string
		wantError bool
	}{
		{name: "daily", schedule: "0 2 * * *"},
		{name: "with seconds", schedule: "*/30 * * * * *"},
		{name: "descriptor", schedule: "@daily"},
		{name: "invalid", schedule: "invalid cron", wantError: true},
		{name: "empty", schedule: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewCronTrigger(tt.schedule)
			if (err != nil) != tt.wantError {
				t.Fatalf("NewCronTrigger() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}

			if trigger.Next() != nil {
				t.Error("Next() should be nil before Start")
			}
			if err := trigger.Start(func() {}); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			defer trigger.Stop()

			next := trigger.Next()
			if next == nil {
				t.Fatal("Next() returned nil for a running trigger")
			}
			if !next.After(time.Now()) {
				t.Errorf("Next() = %v, should be in the future", next)
			}
		})
	}
}

func TestCronTrigger_Restart(t *testing.T) {
	trigger, err := NewCronTrigger("0 2 * * *")
	if err != nil {
		t.Fatalf("NewCronTrigger failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := trigger.Start(func() {}); err != nil {
			t.Fatalf("Start #%d failed: %v", i+1, err)
		}
		if got := len(trigger.cron.Entries()); got != 1 {
			t.Errorf("after Start #%d: %d cron entries, want 1", i+1, got)
		}
		trigger.Stop()
		if got := len(trigger.cron.Entries()); got != 0 {
			t.Errorf("after Stop #%d: %d cron entries, want 0", i+1, got)
		}
	}

	if trigger.Next() != nil {
		t.Error("Next() should be nil after Stop")
	}
}

func TestCronTrigger_Reschedule(t *testing.T) {
	trigger, err := NewCronTrigger("0 2 * * *")
	if err != nil {
		t.Fatalf("NewCronTrigger failed: %v", err)
	}
	if err := trigger.Start(func() {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer trigger.Stop()

	daily := trigger.Next()

	if err := trigger.Reschedule("bogus"); err == nil {
		t.Error("expected error for invalid expression")
	}
	if trigger.Expression() != "0 2 * * *" {
		t.Error("invalid reschedule changed the expression")
	}

	if err := trigger.Reschedule("* * * * * *"); err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	next := trigger.Next()
	if next == nil || !next.Before(*daily) {
		t.Errorf("Next() = %v, expected earlier than %v", next, daily)
	}
}

func TestCronTrigger_Fires(t *testing.T) {
	trigger, err := NewCronTrigger("* * * * * *")
	if err != nil {
		t.Fatalf("NewCronTrigger failed: %v", err)
	}

	fired := make(chan struct{}, 1)
	if err := trigger.Start(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer trigger.Stop()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("cron trigger did not fire within 3s")
	}
}

func TestScheduler_ManualTrigger(t *testing.T) {
	s := newInstrumentedStore()
	seed(t, s, 3, 1)
	cleaner := newTestCleaner(t, s, testPolicy(10))

	trigger := &ManualTrigger{}
	scheduler := NewScheduler(cleaner, trigger)

	if trigger.Fire() {
		t.Error("Fire() should report false before Start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !scheduler.IsRunning() {
		t.Fatal("scheduler should be running")
	}

	if !trigger.Fire() {
		t.Fatal("Fire() should run the sweep")
	}
	last := cleaner.LastSweep()
	if last == nil || last.Trigger != TriggerScheduled || last.Deleted != 3 {
		t.Errorf("unexpected last sweep: %+v", last)
	}

	scheduler.Stop()
	if scheduler.IsRunning() {
		t.Error("scheduler should be stopped")
	}
	if trigger.Fire() {
		t.Error("Fire() should report false after Stop")
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	cleaner := newTestCleaner(t, newInstrumentedStore(), testPolicy(10))
	scheduler := NewScheduler(cleaner, &ManualTrigger{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for scheduler.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if scheduler.IsRunning() {
		t.Error("scheduler still running after context cancellation")
	}
}

func TestScheduler_RunNowAndStats(t *testing.T) {
	s := newInstrumentedStore()
	seed(t, s, 2, 0)
	cleaner := newTestCleaner(t, s, testPolicy(10))

	trigger, err := NewCronTrigger("0 2 * * *")
	if err != nil {
		t.Fatalf("NewCronTrigger failed: %v", err)
	}
	scheduler := NewScheduler(cleaner, trigger)
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scheduler.Stop()

	result := scheduler.RunNow(context.Background(), TriggerManual)
	if result.Outcome != OutcomeCompleted || result.Deleted != 2 {
		t.Errorf("unexpected result: %+v", result)
	}

	stats, err := scheduler.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.NextRun == nil {
		t.Error("Stats should include the next scheduled run")
	}
	if stats.LastSweep == nil || stats.LastSweep.Trigger != TriggerManual {
		t.Errorf("unexpected last sweep: %+v", stats.LastSweep)
	}
}

func TestScheduler_UpdatePolicy(t *testing.T) {
	cleaner := newTestCleaner(t, newInstrumentedStore(), testPolicy(10))
	trigger, err := NewCronTrigger("0 2 * * *")
	if err != nil {
		t.Fatalf("NewCronTrigger failed: %v", err)
	}
	scheduler := NewScheduler(cleaner, trigger)

	p := testPolicy(25)
	p.RetentionDays = 14
	p.CronExpression = "@hourly"
	if err := scheduler.UpdatePolicy(p); err != nil {
		t.Fatalf("UpdatePolicy failed: %v", err)
	}

	if got := cleaner.Policy().Current(); got != p {
		t.Errorf("policy = %+v, want %+v", got, p)
	}
	if trigger.Expression() != "@hourly" {
		t.Errorf("trigger expression = %q, want @hourly", trigger.Expression())
	}

	bad := p
	bad.RetentionDays = -1
	if err := scheduler.UpdatePolicy(bad); err == nil {
		t.Error("expected validation error")
	}
	if cleaner.Policy().Current().RetentionDays != 14 {
		t.Error("invalid update was applied")
	}
}
