// Package health maintains the liveness file polled by external
// orchestrators. The file is rewritten after every run attempt with
// the same temp-then-rename protocol the checkpoint store uses, so a
// poller never observes a partial write.
package health

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Statuses written to the file.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Snapshot is the on-disk document.
type Snapshot struct {
	Status    string    `json:"status"`
	LastRunAt time.Time `json:"last_run_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Writer owns the health file path.
type Writer struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// NewWriter builds a writer for the given path.
func NewWriter(path string, logger *zap.Logger) *Writer {
	return &Writer{path: path, logger: logger.Named("health"), now: time.Now}
}

// Healthy records a successful run.
func (w *Writer) Healthy() error {
	return w.write(Snapshot{Status: StatusHealthy, LastRunAt: w.now().UTC()})
}

// Unhealthy records a failed run with its error.
func (w *Writer) Unhealthy(runErr error) error {
	s := Snapshot{Status: StatusUnhealthy, LastRunAt: w.now().UTC()}
	if runErr != nil {
		s.LastError = runErr.Error()
	}
	return w.write(s)
}

// Read returns the current snapshot, or false when the file is absent
// or unreadable.
func (w *Writer) Read() (Snapshot, bool) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return Snapshot{}, false
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, false
	}
	return s, true
}

func (w *Writer) write(s Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("health: marshal: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("health: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return fmt.Errorf("health: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("health: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("health: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("health: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("health: rename: %w", err)
	}
	w.logger.Debug("health file updated", zap.String("status", s.Status))
	return nil
}
