// Package delivery renders a report and hands it to the configured
// channels. Email and file can both be enabled; a failed email triggers
// a best-effort fallback save to disk, but the run still counts as
// failed so the checkpoint is not advanced.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/unifi-insight/reporter/internal/metrics"
	"github.com/unifi-insight/reporter/internal/model"
)

// Renderer turns a report into bytes. Rendering is pure.
type Renderer interface {
	// ContentType is the MIME type of the rendered body.
	ContentType() string
	Render(r *model.Report) ([]byte, error)
}

// Deliverer sends a rendered report over one channel.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, r *model.Report) error
}

// Manager drives every enabled channel and applies the email-to-file
// fallback. Delivery succeeds only when every enabled channel succeeds.
type Manager struct {
	channels []Deliverer
	fallback Deliverer
	metrics  *metrics.Metrics // may be nil
	logger   *zap.Logger
}

// NewManager wires the enabled channels in delivery order. fallback is
// optional: when set, it runs after a channel failure (typically a file
// save after a failed email) so the report is not lost.
func NewManager(channels []Deliverer, fallback Deliverer, m *metrics.Metrics, logger *zap.Logger) *Manager {
	return &Manager{channels: channels, fallback: fallback, metrics: m, logger: logger.Named("delivery")}
}

// Deliver sends the report over every channel. Any channel error fails
// the delivery, after the fallback save has run.
func (m *Manager) Deliver(ctx context.Context, r *model.Report) error {
	var errs []error
	for _, ch := range m.channels {
		err := ch.Deliver(ctx, r)
		if m.metrics != nil {
			m.metrics.RecordDelivery(ch.Name(), err == nil)
		}
		if err != nil {
			m.logger.Error("channel delivery failed",
				zap.String("channel", ch.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		m.logger.Info("report delivered", zap.String("channel", ch.Name()))
	}

	if len(errs) == 0 {
		return nil
	}

	if m.fallback != nil {
		if err := m.fallback.Deliver(ctx, r); err != nil {
			m.logger.Error("fallback save failed",
				zap.String("channel", m.fallback.Name()), zap.Error(err))
		} else {
			m.logger.Warn("report saved via fallback after delivery failure",
				zap.String("channel", m.fallback.Name()))
		}
	}
	return errors.Join(errs...)
}
