package store

import (
	"context"
	"sync"

	"github.com/i474232898/trail-status/internal/trail"
)

// MemoryStore is a concurrency-safe in-memory Store. Its contents do not survive a
// restart, so the first cycle after boot never notifies.
type MemoryStore struct {
	mu       sync.RWMutex
	revision int64
	statuses map[string]trail.Status
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses: make(map[string]trail.Status),
	}
}

func (s *MemoryStore) Load(_ context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Revision: s.revision,
		Statuses: cloneStatuses(s.statuses),
	}, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, expected int64, statuses map[string]trail.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revision != expected {
		return ErrConflict
	}
	s.statuses = cloneStatuses(statuses)
	s.revision++
	return nil
}
