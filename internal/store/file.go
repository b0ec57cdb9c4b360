package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/i474232898/trail-status/internal/trail"
)

const (
	tmpSuffix       = ".tmp"
	filePermissions = 0o644
	dirPermissions  = 0o755
)

// FileStore keeps the snapshot in a JSON file. Writes go to a temp file that is
// renamed over the target, so readers never see a partial document. Revision
// checks are serialized within the process only.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) CompareAndSwap(_ context.Context, expected int64, statuses map[string]trail.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	if current.Revision != expected {
		return ErrConflict
	}

	data, err := json.MarshalIndent(Snapshot{Revision: expected + 1, Statuses: statuses}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode statuses: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), dirPermissions); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}

	tmp := s.path + tmpSuffix
	if err := os.WriteFile(tmp, data, filePermissions); err != nil {
		return fmt.Errorf("write statuses: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace statuses: %w", err)
	}
	return nil
}

func (s *FileStore) read() (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read statuses: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode statuses %s: %w", s.path, err)
	}
	if snap.Statuses == nil {
		snap.Statuses = map[string]trail.Status{}
	}
	return snap, nil
}
