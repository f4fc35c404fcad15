// Package state persists the high-water-mark checkpoint between runs.
//
// The store must survive a crash at any instant with either the
// previous valid state or no state at all, never a partial file. Writes
// therefore go to a sibling temp file, are flushed, and are renamed
// over the target.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// SchemaVersion is bumped when the checkpoint layout changes.
const SchemaVersion = 1

// SkewTolerance is subtracted from the checkpoint when computing the
// next run's window, so small clock drift between the controller and
// this host cannot drop events.
const SkewTolerance = 5 * time.Minute

// Checkpoint is the persisted state between runs.
type Checkpoint struct {
	SchemaVersion          int       `json:"schema_version"`
	LastDeliveredEventTime time.Time `json:"last_delivered_event_time"`
}

// Store reads and writes the checkpoint file.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a store for the given file path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger.Named("state")}
}

// Read loads the checkpoint. The second return value is false when no
// checkpoint exists; a corrupted file is logged and treated as absent.
func (s *Store) Read() (Checkpoint, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn("checkpoint file corrupted, treating as absent",
			zap.String("path", s.path), zap.Error(err))
		return Checkpoint{}, false, nil
	}
	if cp.SchemaVersion != SchemaVersion || cp.LastDeliveredEventTime.IsZero() {
		s.logger.Warn("checkpoint file has unexpected contents, treating as absent",
			zap.String("path", s.path), zap.Int("schema_version", cp.SchemaVersion))
		return Checkpoint{}, false, nil
	}
	cp.LastDeliveredEventTime = cp.LastDeliveredEventTime.UTC()
	return cp, true, nil
}

// Write persists the checkpoint atomically: temp file in the same
// directory, fsync, then rename over the target.
func (s *Store) Write(cp Checkpoint) error {
	cp.SchemaVersion = SchemaVersion
	cp.LastDeliveredEventTime = cp.LastDeliveredEventTime.UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}

	s.logger.Debug("checkpoint written",
		zap.Time("last_delivered_event_time", cp.LastDeliveredEventTime))
	return nil
}
