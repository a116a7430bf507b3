package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/bundlekeeper/ports"
)

type idempotencyRecord struct {
	createdAt time.Time
	note      string
}

// IdempotencyStore is an in-memory implementation of ports.IdempotencyStore.
type IdempotencyStore struct {
	mu      sync.RWMutex
	records map[string]idempotencyRecord
}

// NewIdempotencyStore creates a new in-memory idempotency store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		records: make(map[string]idempotencyRecord),
	}
}

// Register inserts key if absent. Reports whether it was inserted.
func (s *IdempotencyStore) Register(ctx context.Context, key, note string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; ok {
		return false, nil
	}
	s.records[key] = idempotencyRecord{createdAt: at, note: note}
	return true, nil
}

// Exists reports whether key is registered.
func (s *IdempotencyStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[key]
	return ok, nil
}

// Prune deletes records created before before.
func (s *IdempotencyStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, rec := range s.records {
		if rec.createdAt.Before(before) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

// Ensure interface compliance.
var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)
