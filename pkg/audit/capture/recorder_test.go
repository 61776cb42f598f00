package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mercator-hq/apilog/pkg/audit"
	"mercator-hq/apilog/pkg/audit/store"
	"mercator-hq/apilog/pkg/config"
	"mercator-hq/apilog/pkg/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

type failingStore struct {
	*store.MemoryStore
	mu       sync.Mutex
	attempts int
}

func (s *failingStore) Insert(ctx context.Context, record *audit.Record) error {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()
	return errors.New("disk full")
}

func testCollector() (*metrics.Collector, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	return metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, registry), registry
}

func gatherValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
		return total
	}
	return 0
}

func newTestRecord(id string) *audit.Record {
	return &audit.Record{
		ID:             id,
		Endpoint:       "/api/items",
		Method:         "GET",
		ResponseStatus: 200,
		Timestamp:      time.Now(),
	}
}

func TestRecorder_DropOldest(t *testing.T) {
	memStore := store.NewMemoryStore()
	collector, registry := testCollector()
	rec := newRecorder(memStore, &RecorderConfig{QueueSize: 2, Workers: 1, WriteTimeout: time.Second}, collector)

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := rec.Submit(newTestRecord(id)); err != nil {
			t.Fatalf("Submit(%s) failed: %v", id, err)
		}
	}

	if rec.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", rec.Dropped())
	}
	if rec.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", rec.Pending())
	}
	if got := gatherValue(t, registry, "test_capture_dropped_total"); got != 1 {
		t.Errorf("dropped counter = %v, want 1", got)
	}

	rec.start()
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, ok := memStore.GetByID("r1"); ok {
		t.Error("oldest record r1 should have been dropped")
	}
	for _, id := range []string{"r2", "r3"} {
		if _, ok := memStore.GetByID(id); !ok {
			t.Errorf("record %s should have been persisted", id)
		}
	}
}

func TestRecorder_CloseDrains(t *testing.T) {
	memStore := store.NewMemoryStore()
	rec := NewRecorder(memStore, &RecorderConfig{QueueSize: 100, Workers: 3}, nil)

	for i := 0; i < 50; i++ {
		if err := rec.Submit(newTestRecord(fmt.Sprintf("rec-%d", i))); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if memStore.Size() != 50 {
		t.Errorf("expected 50 persisted records, got %d", memStore.Size())
	}
	if rec.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", rec.Dropped())
	}
}

func TestRecorder_SubmitAfterClose(t *testing.T) {
	rec := NewRecorder(store.NewMemoryStore(), nil, nil)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	err := rec.Submit(newTestRecord("late"))
	if !errors.Is(err, audit.ErrRecorderClosed) {
		t.Errorf("expected ErrRecorderClosed, got %v", err)
	}
}

func TestRecorder_PersistFailureIsCounted(t *testing.T) {
	failing := &failingStore{MemoryStore: store.NewMemoryStore()}
	collector, registry := testCollector()
	rec := NewRecorder(failing, &RecorderConfig{QueueSize: 10, Workers: 1}, collector)

	for i := 0; i < 3; i++ {
		if err := rec.Submit(newTestRecord("")); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	_ = rec.Close()

	if failing.attempts != 3 {
		t.Errorf("expected 3 insert attempts, got %d", failing.attempts)
	}
	if got := gatherValue(t, registry, "test_capture_persist_failures_total"); got != 3 {
		t.Errorf("persist failure counter = %v, want 3", got)
	}
}

func TestRecorder_ConcurrentSubmit(t *testing.T) {
	memStore := store.NewMemoryStore()
	rec := NewRecorder(memStore, &RecorderConfig{QueueSize: 1000, Workers: 4}, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = rec.Submit(newTestRecord(""))
			}
		}()
	}
	wg.Wait()
	_ = rec.Close()

	if memStore.Size() != 200 {
		t.Errorf("expected 200 records, got %d", memStore.Size())
	}
}
