package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/unifi-insight/reporter/internal/metrics"
	"github.com/unifi-insight/reporter/internal/model"
)

// ErrAllSourcesFailed means no configured source produced anything;
// the run must fail and the checkpoint must not advance.
var ErrAllSourcesFailed = errors.New("all collection sources failed")

// DefaultMinEntries is the sufficiency threshold: a source that
// returns fewer entries triggers fall-through to the next one.
const DefaultMinEntries = 10

// Orchestrator walks the PUSH → REST → SHELL fallback chain, merging
// (not replacing) what earlier sources returned, deduplicating across
// sources, and sorting the result.
type Orchestrator struct {
	push       Collector // may be nil when push is disabled
	rest       Collector
	shell      Collector // may be nil when shell is disabled
	minEntries int
	metrics    *metrics.Metrics // may be nil
	logger     *zap.Logger
}

// NewOrchestrator wires the chain. rest is required; push, shell, and
// m are optional.
func NewOrchestrator(push, rest, shell Collector, minEntries int, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	if minEntries <= 0 {
		minEntries = DefaultMinEntries
	}
	return &Orchestrator{
		push:       push,
		rest:       rest,
		shell:      shell,
		minEntries: minEntries,
		metrics:    m,
		logger:     logger.Named("orchestrator"),
	}
}

// Collect produces the run's deduplicated, timestamp-ordered entries.
// Partial success is a normal outcome; only all-sources-failed is an
// error.
func (o *Orchestrator) Collect(ctx context.Context, window model.Window) ([]model.LogEntry, error) {
	var merged []model.LogEntry
	var failures []string
	attempted := 0

	collectFrom := func(c Collector) bool {
		attempted++
		entries, err := c.Collect(ctx, window)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", c.Name(), err))
			if o.metrics != nil {
				o.metrics.RecordSourceFailure(c.Name())
			}
			o.logger.Warn("source failed", zap.String("source", c.Name()), zap.Error(err))
			return false
		}
		merged = append(merged, entries...)
		o.logger.Info("source collected",
			zap.String("source", c.Name()), zap.Int("entries", len(entries)))
		return true
	}

	if o.push != nil {
		collectFrom(o.push)
	}
	if len(merged) < o.minEntries {
		collectFrom(o.rest)
	}
	if len(merged) < o.minEntries && o.shell != nil {
		collectFrom(o.shell)
	}

	if len(failures) == attempted && attempted > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAllSourcesFailed, strings.Join(failures, "; "))
	}

	deduped := dedupe(merged)
	sortEntries(deduped)
	o.logger.Info("collection complete",
		zap.Int("raw", len(merged)), zap.Int("deduplicated", len(deduped)))
	return deduped, nil
}

// dedupe collapses entries sharing (timestamp, message, device MAC) —
// the cross-source identity, since sources do not share event IDs. The
// first arrival wins, which preserves source priority because sources
// are collected in priority order.
func dedupe(entries []model.LogEntry) []model.LogEntry {
	seen := make(map[model.DedupeKey]struct{}, len(entries))
	out := make([]model.LogEntry, 0, len(entries))
	for _, e := range entries {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// sortEntries orders by timestamp ascending; ties break by source
// priority (PUSH < REST < SHELL) and then arrival order within a
// source, which the stable sort preserves.
func sortEntries(entries []model.LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].Source < entries[j].Source
	})
}
