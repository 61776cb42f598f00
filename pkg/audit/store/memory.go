package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"mercator-hq/apilog/pkg/audit"
)

// MemoryStore implements audit.Store using an in-memory map.
// It is used by tests and by the "memory" backend for local development.
type MemoryStore struct {
	records map[string]*audit.Record
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*audit.Record),
	}
}

// Insert stores a copy of the record. An ID is generated when the record
// does not carry one; the generated ID is written back to the caller's record.
func (s *MemoryStore) Insert(ctx context.Context, record *audit.Record) error {
	if err := ctx.Err(); err != nil {
		return audit.NewStorageError("memory", "insert", err)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record.Clone()
	return nil
}

// Find returns copies of matching records ordered by timestamp, then ID.
func (s *MemoryStore) Find(ctx context.Context, filter *audit.Filter) ([]*audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, audit.NewStorageError("memory", "find", err)
	}

	s.mu.RLock()
	results := make([]*audit.Record, 0)
	for _, record := range s.records {
		if filter.Matches(record) {
			results = append(results, record.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if !results[i].Timestamp.Equal(results[j].Timestamp) {
			return results[i].Timestamp.Before(results[j].Timestamp)
		}
		return results[i].ID < results[j].ID
	})

	if filter != nil && filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Count returns the number of matching records.
func (s *MemoryStore) Count(ctx context.Context, filter *audit.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, audit.NewStorageError("memory", "count", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if filter.Matches(record) {
			count++
		}
	}
	return count, nil
}

// DeleteByIDs removes the given records under a single lock acquisition.
func (s *MemoryStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, audit.NewStorageError("memory", "delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Clear removes all records (test helper).
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*audit.Record)
}

// Size returns the number of stored records (test helper).
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// GetByID returns a copy of the record with the given ID (test helper).
func (s *MemoryStore) GetByID(id string) (*audit.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}
