package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/weftworks/weft/pkg/domain/run"
	"github.com/weftworks/weft/pkg/ports"
)

// Store implements RunStore with an in-memory map. Snapshots are cloned on
// both save and load, so callers never share mutable state with the store.
type Store struct {
	runs map[string]*run.Snapshot
	mu   sync.RWMutex
}

// NewStore creates a new in-memory run store
func NewStore() *Store {
	return &Store{
		runs: make(map[string]*run.Snapshot),
	}
}

// SaveRun persists a snapshot under its run id.
func (s *Store) SaveRun(ctx context.Context, snapshot *run.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[snapshot.ID] = snapshot.Clone()
	return nil
}

// LoadRun retrieves the snapshot for a run id.
func (s *Store) LoadRun(ctx context.Context, id string) (*run.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.runs[id]
	if !ok {
		return nil, ports.ErrRunNotFound
	}
	return snap.Clone(), nil
}

// DeleteRun removes the snapshot for a run id.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return ports.ErrRunNotFound
	}
	delete(s.runs, id)
	return nil
}

// ListRuns returns every stored snapshot, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*run.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*run.Snapshot, 0, len(s.runs))
	for _, snap := range s.runs {
		out = append(out, snap.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
