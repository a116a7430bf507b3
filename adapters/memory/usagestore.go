package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/bundlekeeper/domain/usage"
	"github.com/artpar/bundlekeeper/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore.
type UsageStore struct {
	mu     sync.RWMutex
	events []usage.Event
	nextID int64
}

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{
		events: make([]usage.Event, 0),
	}
}

// Record appends an event and returns it with its assigned ID.
func (s *UsageStore) Record(ctx context.Context, e usage.Event) (usage.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	e.ID = s.nextID
	s.events = append(s.events, e)
	return e, nil
}

// Since returns events at or after since, newest first.
func (s *UsageStore) Since(ctx context.Context, since time.Time) ([]usage.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matching []usage.Event
	for _, e := range s.events {
		if !e.Timestamp.Before(since) {
			matching = append(matching, e)
		}
	}
	return usage.NewestFirst(matching), nil
}

// Recent returns up to limit events, newest first.
func (s *UsageStore) Recent(ctx context.Context, limit int) ([]usage.Event, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := usage.NewestFirst(s.events)
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

// Delete removes a single event by ID.
func (s *UsageStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.events {
		if e.ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			break
		}
	}
	return nil
}

// Prune deletes events older than before.
func (s *UsageStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var removed int64
	for _, e := range s.events {
		if e.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
