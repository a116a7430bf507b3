package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/ports"
)

// IdempotencyStore implements ports.IdempotencyStore using SQLite.
type IdempotencyStore struct {
	db *DB
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(db *DB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Register inserts key if absent. Reports whether it was inserted.
func (s *IdempotencyStore) Register(ctx context.Context, key, note string, at time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency (key, created_ts, note) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		key, bundle.Epoch(at), note,
	)
	if err != nil {
		return false, fmt.Errorf("register idempotency key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("register idempotency key: %w", err)
	}
	return n == 1, nil
}

// Exists reports whether key is registered.
func (s *IdempotencyStore) Exists(ctx context.Context, key string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM idempotency WHERE key = ?`, key,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return n > 0, nil
}

// Prune deletes records created before before.
func (s *IdempotencyStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency WHERE created_ts < ?`, bundle.Epoch(before))
	if err != nil {
		return 0, fmt.Errorf("prune idempotency: %w", err)
	}
	return res.RowsAffected()
}

// Ensure interface compliance.
var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)
