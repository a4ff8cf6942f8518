// Package storage persists the grade snapshot between runs and keeps the
// long-term grade history. The snapshot is the only state crossing run
// boundaries: read once at run start, written once after a completed run.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/user/obs-watcher/internal/domain"
)

// SnapshotStore reads and replaces the cached snapshot.
type SnapshotStore interface {
	Load(ctx context.Context) (domain.Snapshot, error)
	Save(ctx context.Context, snap domain.Snapshot) error
}

// FileStore keeps the snapshot as a JSON file, the default backend.
type FileStore struct {
	path   string
	logger *zap.Logger
}

func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Load returns the cached snapshot. A missing or corrupt file is an empty
// snapshot, not an error: the watcher must keep running and the next
// successful save repairs the cache.
func (s *FileStore) Load(_ context.Context) (domain.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("snapshot cache unreadable, starting empty",
				zap.String("path", s.path), zap.Error(err))
		}
		return nil, nil
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("snapshot cache corrupt, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return nil, nil
	}
	return snap, nil
}

// Save atomically replaces the cache with the full current snapshot.
func (s *FileStore) Save(_ context.Context, snap domain.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
