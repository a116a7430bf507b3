package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/bundlekeeper/domain/audit"
	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/ports"
)

// AuditStore implements ports.AuditLog using SQLite.
type AuditStore struct {
	db *DB
}

// NewAuditStore creates a new audit store.
func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append stores an entry.
func (s *AuditStore) Append(ctx context.Context, e audit.Entry) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (ts, level, message) VALUES (?, ?, ?)`,
		bundle.Epoch(e.Timestamp), string(e.Level), e.Message,
	)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, level, message FROM logs
		 ORDER BY ts DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e     audit.Entry
			ts    float64
			level string
		)
		if err := rows.Scan(&e.ID, &ts, &level, &e.Message); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Timestamp = bundle.TimeFromEpoch(ts)
		e.Level = audit.Level(level)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than before.
func (s *AuditStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE ts < ?`, bundle.Epoch(before))
	if err != nil {
		return 0, fmt.Errorf("prune logs: %w", err)
	}
	return res.RowsAffected()
}

// Ensure interface compliance.
var _ ports.AuditLog = (*AuditStore)(nil)
