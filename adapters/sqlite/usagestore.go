package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/domain/usage"
	"github.com/artpar/bundlekeeper/ports"
)

// UsageStore implements ports.UsageStore using SQLite.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// Record appends an event and returns it with its assigned ID.
func (s *UsageStore) Record(ctx context.Context, e usage.Event) (usage.Event, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (ts, amount_mb) VALUES (?, ?)`,
		bundle.Epoch(e.Timestamp), e.AmountMB,
	)
	if err != nil {
		return usage.Event{}, fmt.Errorf("record usage: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return usage.Event{}, fmt.Errorf("record usage id: %w", err)
	}
	e.ID = id
	return e, nil
}

// Since returns events at or after since, newest first.
func (s *UsageStore) Since(ctx context.Context, since time.Time) ([]usage.Event, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, amount_mb FROM usage_events
		 WHERE ts >= ?
		 ORDER BY ts DESC, id DESC`,
		bundle.Epoch(since),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	return scanEvents(rows)
}

// Recent returns up to limit events, newest first.
func (s *UsageStore) Recent(ctx context.Context, limit int) ([]usage.Event, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, amount_mb FROM usage_events
		 ORDER BY ts DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	return scanEvents(rows)
}

// Delete removes a single event by ID.
func (s *UsageStore) Delete(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM usage_events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete usage: %w", err)
	}
	return nil
}

// Prune deletes events older than before.
func (s *UsageStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_events WHERE ts < ?`, bundle.Epoch(before))
	if err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	return res.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]usage.Event, error) {
	defer rows.Close()

	var events []usage.Event
	for rows.Next() {
		var (
			e  usage.Event
			ts float64
		)
		if err := rows.Scan(&e.ID, &ts, &e.AmountMB); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		e.Timestamp = bundle.TimeFromEpoch(ts)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
