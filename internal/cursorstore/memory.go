package cursorstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store. Suitable for development and testing;
// checkpoints are lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]Checkpoint)}
}

func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.RunID] = *cp
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, runID)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Verify interface compliance
var _ Store = (*MemoryStore)(nil)
