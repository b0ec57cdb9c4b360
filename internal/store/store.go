package store

import (
	"context"
	"errors"

	"github.com/i474232898/trail-status/internal/trail"
)

// ErrConflict is returned by CompareAndSwap when another writer committed first.
var ErrConflict = errors.New("persisted statuses changed since load")

// Snapshot is the persisted last-known status per trail id. Revision increases by
// one on every successful write; zero means nothing has been written yet.
type Snapshot struct {
	Revision int64                   `json:"revision"`
	Statuses map[string]trail.Status `json:"statuses"`
}

// Store persists the last-known status map with optimistic concurrency.
type Store interface {
	// Load returns the current snapshot. A store that was never written returns an
	// empty snapshot at revision zero.
	Load(ctx context.Context) (Snapshot, error)
	// CompareAndSwap replaces the statuses only if the stored revision still equals
	// expected, otherwise it returns ErrConflict.
	CompareAndSwap(ctx context.Context, expected int64, statuses map[string]trail.Status) error
}

func cloneStatuses(in map[string]trail.Status) map[string]trail.Status {
	out := make(map[string]trail.Status, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func emptySnapshot() Snapshot {
	return Snapshot{Statuses: map[string]trail.Status{}}
}
