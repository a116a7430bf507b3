package memory

import (
	"context"
	"sync"

	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/ports"
)

// StateStore is an in-memory implementation of ports.StateStore.
type StateStore struct {
	mu      sync.RWMutex
	cfg     *bundle.Config
	st      *bundle.State
	saveErr error
	saves   int
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{}
}

// FailSaves makes every subsequent save return err (nil to clear).
func (s *StateStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves returns the number of successful saves.
func (s *StateStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Seed stores cfg and st for each document that does not exist yet.
func (s *StateStore) Seed(ctx context.Context, cfg bundle.Config, st bundle.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg == nil {
		s.cfg = &cfg
	}
	if s.st == nil {
		s.st = &st
	}
	return nil
}

// LoadConfig returns the stored config or ports.ErrNotFound.
func (s *StateStore) LoadConfig(ctx context.Context) (bundle.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg == nil {
		return bundle.Config{}, ports.ErrNotFound
	}
	return *s.cfg, nil
}

// SaveConfig replaces the stored config.
func (s *StateStore) SaveConfig(ctx context.Context, cfg bundle.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	s.cfg = &cfg
	s.saves++
	return nil
}

// LoadState returns the stored state or ports.ErrNotFound.
func (s *StateStore) LoadState(ctx context.Context) (bundle.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.st == nil {
		return bundle.State{}, ports.ErrNotFound
	}
	return *s.st, nil
}

// SaveState replaces the stored state.
func (s *StateStore) SaveState(ctx context.Context, st bundle.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	s.st = &st
	s.saves++
	return nil
}

// Ensure interface compliance.
var _ ports.StateStore = (*StateStore)(nil)
