// Package aggregate holds the post-pass detectors that look at groups
// of events rather than single ones. Aggregators run after per-event
// rule evaluation and are order-independent with respect to each
// other: each consumes the entry set (and may read, never mutate, the
// current findings) and emits additional findings.
package aggregate

import (
	"github.com/unifi-insight/reporter/internal/model"
)

// Aggregator is one post-pass detector.
type Aggregator interface {
	Name() string
	Aggregate(entries []model.LogEntry, findings []model.Finding) []model.Finding
}

// Run executes every aggregator and appends what they emit.
func Run(aggs []Aggregator, entries []model.LogEntry, findings []model.Finding) []model.Finding {
	out := findings
	for _, a := range aggs {
		out = append(out, a.Aggregate(entries, findings)...)
	}
	return out
}
