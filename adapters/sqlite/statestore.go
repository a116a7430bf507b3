package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/ports"
)

// Document keys in the kv table.
const (
	KeyConfig = "config"
	KeyState  = "state"
)

// StateStore implements ports.StateStore using SQLite.
type StateStore struct {
	db *DB
}

// NewStateStore creates a new state store.
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

// Seed inserts cfg and st for each document that does not exist yet.
func (s *StateStore) Seed(ctx context.Context, cfg bundle.Config, st bundle.State) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	stJSON, err := json.Marshal(st.Document())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	now := bundle.Epoch(time.Now())
	for _, doc := range []struct {
		key   string
		value []byte
	}{{KeyConfig, cfgJSON}, {KeyState, stJSON}} {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO NOTHING`,
			doc.key, string(doc.value), now,
		)
		if err != nil {
			return fmt.Errorf("seed %s: %w", doc.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

// LoadConfig returns the stored config. Fields missing from the stored
// document keep their defaults.
func (s *StateStore) LoadConfig(ctx context.Context) (bundle.Config, error) {
	raw, err := s.get(ctx, KeyConfig)
	if err != nil {
		return bundle.Config{}, err
	}
	cfg := bundle.Defaults()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return bundle.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// SaveConfig replaces the stored config.
func (s *StateStore) SaveConfig(ctx context.Context, cfg bundle.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return s.put(ctx, KeyConfig, raw)
}

// LoadState returns the stored state.
func (s *StateStore) LoadState(ctx context.Context) (bundle.State, error) {
	raw, err := s.get(ctx, KeyState)
	if err != nil {
		return bundle.State{}, err
	}
	var doc bundle.StateDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return bundle.State{}, fmt.Errorf("decode state: %w", err)
	}
	return doc.State(), nil
}

// SaveState replaces the stored state.
func (s *StateStore) SaveState(ctx context.Context, st bundle.State) error {
	raw, err := json.Marshal(st.Document())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return s.put(ctx, KeyState, raw)
}

func (s *StateStore) get(ctx context.Context, key string) ([]byte, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", key, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *StateStore) put(ctx context.Context, key string, value []byte) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), bundle.Epoch(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Ensure interface compliance.
var _ ports.StateStore = (*StateStore)(nil)
