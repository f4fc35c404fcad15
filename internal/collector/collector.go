// Package collector gathers controller events from the three sources
// (push stream, REST poll, remote shell) and merges them through the
// orchestrator's fallback chain.
package collector

import (
	"context"

	"github.com/unifi-insight/reporter/internal/model"
)

// Collector produces the entries one source saw within a window. A
// collector returns whatever it has together with an error when the
// source failed part-way; the orchestrator treats partial results as a
// normal outcome.
type Collector interface {
	Name() string
	Collect(ctx context.Context, window model.Window) ([]model.LogEntry, error)
}
