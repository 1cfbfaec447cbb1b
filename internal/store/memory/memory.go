// Package memory implements run.Store in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/prok20/faulty-server-poller/internal/run"
)

// Store keeps runs in a map. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	runs map[run.ID]run.Run
}

// New returns an empty Store.
func New() *Store {
	return &Store{runs: make(map[run.ID]run.Run)}
}

// GenerateRunID returns a fresh random id.
func (s *Store) GenerateRunID(context.Context) run.ID {
	return uuid.New()
}

// SaveRun records r as in progress. Saving an existing id is an error.
func (s *Store) SaveRun(_ context.Context, r run.NewRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[r.ID]; exists {
		return fmt.Errorf("run %s already exists", r.ID)
	}
	s.runs[r.ID] = run.Run{ID: r.ID, Status: run.StatusInProgress}
	return nil
}

// UpdateRun replaces an in-progress run with its terminal state.
func (s *Store) UpdateRun(_ context.Context, r run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.runs[r.ID]
	if !ok {
		return fmt.Errorf("update run %s: %w", r.ID, run.ErrNotFound)
	}
	if current.Status == run.StatusFinished {
		return fmt.Errorf("update run %s: %w", r.ID, run.ErrAlreadyFinished)
	}
	s.runs[r.ID] = r
	return nil
}

// GetRunByID returns the stored run or ErrNotFound.
func (s *Store) GetRunByID(_ context.Context, id run.ID) (run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return run.Run{}, run.ErrNotFound
	}
	return r, nil
}

// Len reports the number of stored runs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
