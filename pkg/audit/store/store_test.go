package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/apilog/pkg/audit"
)

// backends returns a fresh instance of every store implementation that can
// run without external services.
func backends(t *testing.T) map[string]audit.Store {
	t.Helper()

	out := map[string]audit.Store{
		"memory": NewMemoryStore(),
	}

	for _, driver := range []string{DriverSQLite3, DriverSQLite} {
		cfg := DefaultSQLConfig(filepath.Join(t.TempDir(), driver+".db"))
		cfg.Driver = driver
		s, err := NewSQLStore(cfg)
		if err != nil {
			t.Fatalf("NewSQLStore(%s) failed: %v", driver, err)
		}
		t.Cleanup(func() { s.Close() })
		out[driver] = s
	}
	return out
}

func newRecord(endpoint, method string, status int, ts time.Time) *audit.Record {
	return &audit.Record{
		Endpoint:       endpoint,
		Method:         method,
		ResponseStatus: status,
		Timestamp:      ts,
		RequestHeaders: map[string]string{"Accept": "application/json"},
		QueryParams:    map[string]string{},
		PathParams:     map[string]string{},
	}
}

// TestStore_InsertAssignsID tests that Insert generates an ID and the record
// round-trips with optional fields intact.
func TestStore_InsertAssignsID(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

			r := newRecord("/api/todos", "POST", 201, ts)
			r.UserID = audit.StringPtr("u1")
			r.RequestBody = audit.StringPtr(`{"title":"x"}`)
			exec := int64(42)
			r.ExecutionTimeMillis = &exec

			if err := s.Insert(ctx, r); err != nil {
				t.Fatalf("Insert() failed: %v", err)
			}
			if r.ID == "" {
				t.Fatal("Insert() did not assign an ID")
			}

			got, err := s.Find(ctx, &audit.Filter{})
			if err != nil {
				t.Fatalf("Find() failed: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 record, got %d", len(got))
			}

			rec := got[0]
			if rec.ID != r.ID {
				t.Errorf("ID = %q, want %q", rec.ID, r.ID)
			}
			if rec.UserID == nil || *rec.UserID != "u1" {
				t.Errorf("UserID = %v, want u1", rec.UserID)
			}
			if rec.ResponseBody != nil {
				t.Errorf("ResponseBody = %q, want absent", *rec.ResponseBody)
			}
			if rec.ExecutionTimeMillis == nil || *rec.ExecutionTimeMillis != 42 {
				t.Errorf("ExecutionTimeMillis = %v, want 42", rec.ExecutionTimeMillis)
			}
			if !rec.Timestamp.Equal(ts) {
				t.Errorf("Timestamp = %v, want %v", rec.Timestamp, ts)
			}
			if rec.RequestHeaders["Accept"] != "application/json" {
				t.Errorf("RequestHeaders = %v", rec.RequestHeaders)
			}
		})
	}
}

// TestStore_FindFilters tests each filter field against every backend.
func TestStore_FindFilters(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, s audit.Store) {
		t.Helper()
		records := []*audit.Record{
			newRecord("/a", "GET", 200, base),
			newRecord("/a", "POST", 201, base.Add(time.Hour)),
			newRecord("/b", "GET", 404, base.Add(2*time.Hour)),
			newRecord("/b", "DELETE", 500, base.Add(3*time.Hour)),
		}
		records[0].UserID = audit.StringPtr("alice")
		records[2].UserID = audit.StringPtr("alice")
		records[3].UserID = audit.StringPtr("bob")
		for _, r := range records {
			if err := s.Insert(context.Background(), r); err != nil {
				t.Fatalf("Insert() failed: %v", err)
			}
		}
	}

	tests := []struct {
		name   string
		filter *audit.Filter
		want   int
	}{
		{"all", &audit.Filter{}, 4},
		{"user", &audit.Filter{UserID: "alice"}, 2},
		{"endpoint exact", &audit.Filter{Endpoint: "/a"}, 2},
		{"endpoint no prefix match", &audit.Filter{Endpoint: "/"}, 0},
		{"method", &audit.Filter{Method: "GET"}, 2},
		{"status", &audit.Filter{Status: audit.IntPtr(404)}, 1},
		{"min status", &audit.Filter{MinStatus: audit.IntPtr(400)}, 2},
		{"min status and user", &audit.Filter{MinStatus: audit.IntPtr(400), UserID: "alice"}, 1},
		{"inclusive window", &audit.Filter{
			StartTime: audit.TimePtr(base.Add(time.Hour)),
			EndTime:   audit.TimePtr(base.Add(2 * time.Hour)),
		}, 2},
		{"before is strict", &audit.Filter{Before: audit.TimePtr(base.Add(time.Hour))}, 1},
		{"limit", &audit.Filter{Limit: 3}, 3},
	}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := s.Find(context.Background(), tt.filter)
					if err != nil {
						t.Fatalf("Find() failed: %v", err)
					}
					if len(got) != tt.want {
						t.Errorf("Find() returned %d records, want %d", len(got), tt.want)
					}

					count, err := s.Count(context.Background(), &audit.Filter{
						UserID: tt.filter.UserID, Endpoint: tt.filter.Endpoint, Method: tt.filter.Method,
						Status: tt.filter.Status, MinStatus: tt.filter.MinStatus,
						StartTime: tt.filter.StartTime, EndTime: tt.filter.EndTime, Before: tt.filter.Before,
					})
					if err != nil {
						t.Fatalf("Count() failed: %v", err)
					}
					if tt.filter.Limit == 0 && count != int64(tt.want) {
						t.Errorf("Count() = %d, want %d", count, tt.want)
					}
				})
			}
		})
	}
}

// TestStore_FindOrdering tests that results are ordered oldest first.
func TestStore_FindOrdering(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, offset := range []int{3, 1, 2, 0} {
				r := newRecord(fmt.Sprintf("/r%d", offset), "GET", 200, base.Add(time.Duration(offset)*time.Minute))
				if err := s.Insert(ctx, r); err != nil {
					t.Fatalf("Insert() failed: %v", err)
				}
			}

			got, err := s.Find(ctx, &audit.Filter{Limit: 2})
			if err != nil {
				t.Fatalf("Find() failed: %v", err)
			}
			if len(got) != 2 || got[0].Endpoint != "/r0" || got[1].Endpoint != "/r1" {
				t.Fatalf("unexpected order: %v, %v", got[0].Endpoint, got[1].Endpoint)
			}
		})
	}
}

// TestStore_DeleteByIDs tests set deletion and the reported count.
func TestStore_DeleteByIDs(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var ids []string
			for i := 0; i < 5; i++ {
				r := newRecord("/x", "GET", 200, base.Add(time.Duration(i)*time.Second))
				if err := s.Insert(ctx, r); err != nil {
					t.Fatalf("Insert() failed: %v", err)
				}
				ids = append(ids, r.ID)
			}

			deleted, err := s.DeleteByIDs(ctx, append(ids[:3:3], "missing"))
			if err != nil {
				t.Fatalf("DeleteByIDs() failed: %v", err)
			}
			if deleted != 3 {
				t.Errorf("DeleteByIDs() = %d, want 3", deleted)
			}

			deleted, err = s.DeleteByIDs(ctx, nil)
			if err != nil {
				t.Fatalf("DeleteByIDs(nil) failed: %v", err)
			}
			if deleted != 0 {
				t.Errorf("DeleteByIDs(nil) = %d, want 0", deleted)
			}

			count, err := s.Count(ctx, &audit.Filter{})
			if err != nil {
				t.Fatalf("Count() failed: %v", err)
			}
			if count != 2 {
				t.Errorf("Count() = %d, want 2", count)
			}
		})
	}
}

// TestStore_DeleteByIDs_LargeBatch tests a delete with more ids than SQLite
// accepts bind variables in one statement.
func TestStore_DeleteByIDs_LargeBatch(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ids := make([]string, 0, 40003)
			for i := 0; i < 40000; i++ {
				ids = append(ids, fmt.Sprintf("missing-%05d", i))
			}
			for i := 0; i < 3; i++ {
				r := newRecord("/x", "GET", 200, base.Add(time.Duration(i)*time.Second))
				if err := s.Insert(ctx, r); err != nil {
					t.Fatalf("Insert() failed: %v", err)
				}
				ids = append(ids, r.ID)
			}
			keep := newRecord("/y", "GET", 200, base)
			if err := s.Insert(ctx, keep); err != nil {
				t.Fatalf("Insert() failed: %v", err)
			}

			deleted, err := s.DeleteByIDs(ctx, ids)
			if err != nil {
				t.Fatalf("DeleteByIDs() failed: %v", err)
			}
			if deleted != 3 {
				t.Errorf("DeleteByIDs() = %d, want 3", deleted)
			}

			count, err := s.Count(ctx, &audit.Filter{})
			if err != nil {
				t.Fatalf("Count() failed: %v", err)
			}
			if count != 1 {
				t.Errorf("Count() = %d, want 1", count)
			}
		})
	}
}

// TestStore_TimeBoundsOutsideNanosecondRange tests filters with times that
// cannot be expressed as int64 Unix nanoseconds.
func TestStore_TimeBoundsOutsideNanosecondRange(t *testing.T) {
	recent := time.Now().UTC().Add(-time.Hour)
	ancient := time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC)
	distant := time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter *audit.Filter
		want   int64
	}{
		{"before ancient cutoff", &audit.Filter{Before: &ancient}, 0},
		{"before distant cutoff", &audit.Filter{Before: &distant}, 3},
		{"start in the past", &audit.Filter{StartTime: &ancient}, 3},
		{"end in the past", &audit.Filter{EndTime: &ancient}, 0},
		{"window across the range", &audit.Filter{StartTime: &ancient, EndTime: &distant}, 3},
		{"start in the future", &audit.Filter{StartTime: &distant}, 0},
	}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				if err := s.Insert(ctx, newRecord("/x", "GET", 200, recent.Add(time.Duration(i)*time.Minute))); err != nil {
					t.Fatalf("Insert() failed: %v", err)
				}
			}

			for _, tt := range tests {
				count, err := s.Count(ctx, tt.filter)
				if err != nil {
					t.Fatalf("%s: Count() failed: %v", tt.name, err)
				}
				if count != tt.want {
					t.Errorf("%s: Count() = %d, want %d", tt.name, count, tt.want)
				}
			}
		})
	}
}

func TestUnixNanos(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   time.Time
		want int64
	}{
		{"in range", ts, ts.UnixNano()},
		{"before 1678", time.Date(1613, 10, 8, 0, 0, 0, 0, time.UTC), math.MinInt64},
		{"after 2262", time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC), math.MaxInt64},
		{"lower bound", minStoredTime, math.MinInt64},
		{"upper bound", maxStoredTime, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unixNanos(tt.in); got != tt.want {
				t.Errorf("unixNanos(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

// TestStore_Ping tests connectivity checks.
func TestStore_Ping(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Ping(context.Background()); err != nil {
				t.Errorf("Ping() failed: %v", err)
			}
		})
	}
}

// TestNewSQLStore_UnsupportedDriver tests that unknown drivers are rejected.
func TestNewSQLStore_UnsupportedDriver(t *testing.T) {
	_, err := NewSQLStore(&SQLConfig{Driver: "oracle", DSN: "x"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

// TestMemoryStore_CopiesRecords tests that callers cannot mutate stored data.
func TestMemoryStore_CopiesRecords(t *testing.T) {
	s := NewMemoryStore()
	r := newRecord("/x", "GET", 200, time.Now())
	if err := s.Insert(context.Background(), r); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	r.RequestHeaders["Accept"] = "mutated"
	got, ok := s.GetByID(r.ID)
	if !ok {
		t.Fatal("GetByID() did not find record")
	}
	if got.RequestHeaders["Accept"] != "application/json" {
		t.Errorf("stored record was mutated: %v", got.RequestHeaders)
	}
}
