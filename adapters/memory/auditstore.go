package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artpar/bundlekeeper/domain/audit"
	"github.com/artpar/bundlekeeper/ports"
)

// AuditStore is an in-memory implementation of ports.AuditLog.
type AuditStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
	nextID  int64
}

// NewAuditStore creates a new in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Append stores an entry.
func (s *AuditStore) Append(ctx context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	e.ID = s.nextID
	s.entries = append(s.entries, e)
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	out := make([]audit.Entry, len(s.entries))
	copy(out, s.entries)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Prune deletes entries older than before.
func (s *AuditStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if e.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

// Messages returns all messages containing substr, oldest first (for testing).
func (s *AuditStore) Messages(substr string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, e := range s.entries {
		if strings.Contains(e.Message, substr) {
			out = append(out, e.Message)
		}
	}
	return out
}

// Ensure interface compliance.
var _ ports.AuditLog = (*AuditStore)(nil)
