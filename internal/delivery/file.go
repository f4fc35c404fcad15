package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unifi-insight/reporter/internal/model"
)

// FileConfig is the disk channel configuration.
type FileConfig struct {
	OutputDir string
	// Format is html, text, or both.
	Format        string
	RetentionDays int
}

// FileDeliverer writes timestamped report files and prunes old ones.
type FileDeliverer struct {
	cfg    FileConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewFileDeliverer builds the disk channel.
func NewFileDeliverer(cfg FileConfig, logger *zap.Logger) *FileDeliverer {
	return &FileDeliverer{cfg: cfg, logger: logger.Named("file"), now: time.Now}
}

func (f *FileDeliverer) Name() string { return "file" }

// Deliver writes one file per configured format, then sweeps expired
// reports. A failed sweep never fails the delivery.
func (f *FileDeliverer) Deliver(ctx context.Context, r *model.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	stamp := f.now().UTC().Format("20060102-150405")
	for _, spec := range f.renderers() {
		body, err := spec.renderer.Render(r)
		if err != nil {
			return err
		}
		path := filepath.Join(f.cfg.OutputDir, fmt.Sprintf("report-%s%s", stamp, spec.ext))
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		f.logger.Info("report written", zap.String("path", path))
	}

	if err := f.Sweep(); err != nil {
		f.logger.Warn("retention sweep failed", zap.Error(err))
	}
	return nil
}

type rendererSpec struct {
	renderer Renderer
	ext      string
}

func (f *FileDeliverer) renderers() []rendererSpec {
	switch f.cfg.Format {
	case "text":
		return []rendererSpec{{TextRenderer{}, ".txt"}}
	case "both":
		return []rendererSpec{{HTMLRenderer{}, ".html"}, {TextRenderer{}, ".txt"}}
	default:
		return []rendererSpec{{HTMLRenderer{}, ".html"}}
	}
}

// Sweep removes report files older than the retention window. State
// and health files in the same directory are never touched.
func (f *FileDeliverer) Sweep() error {
	if f.cfg.RetentionDays <= 0 {
		return nil
	}
	cutoff := f.now().Add(-time.Duration(f.cfg.RetentionDays) * 24 * time.Hour)

	entries, err := os.ReadDir(f.cfg.OutputDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "report-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(f.cfg.OutputDir, name)
			if err := os.Remove(path); err != nil {
				f.logger.Warn("could not remove expired report",
					zap.String("path", path), zap.Error(err))
				continue
			}
			f.logger.Debug("expired report removed", zap.String("path", path))
		}
	}
	return nil
}
