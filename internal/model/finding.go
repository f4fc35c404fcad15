package model

import (
	"fmt"
	"sort"
	"time"
)

// Category classifies what part of the network a finding concerns.
type Category string

const (
	CategoryConnectivity Category = "connectivity"
	CategoryPerformance  Category = "performance"
	CategorySecurity     Category = "security"
	CategorySystem       Category = "system"
	CategoryWireless     Category = "wireless"
	CategoryOther        Category = "other"
)

// Severity orders findings for the report. SEVERE findings must carry a
// remediation step.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeveritySevere
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeveritySevere:
		return "SEVERE"
	default:
		return "UNKNOWN"
	}
}

// RecurringThreshold is the occurrence count at which a rolled-up
// finding is flagged as recurring.
const RecurringThreshold = 5

// Finding is one classified issue surfaced in the report.
type Finding struct {
	ID               string            `json:"id"`
	Category         Category          `json:"category"`
	Severity         Severity          `json:"severity"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Remediation      string            `json:"remediation,omitempty"`
	OccurrenceCount  int               `json:"occurrence_count"`
	FirstSeen        time.Time         `json:"first_seen"`
	LastSeen         time.Time         `json:"last_seen"`
	AffectedEntities []string          `json:"affected_entities,omitempty"`
	SourceEventIDs   []string          `json:"source_event_ids,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// IsRecurring reports whether the finding rolled up enough occurrences
// to be called out as a repeating problem.
func (f *Finding) IsRecurring() bool {
	return f.OccurrenceCount >= RecurringThreshold
}

// IsActionable reports whether the finding is severe and carries a
// concrete remediation step.
func (f *Finding) IsActionable() bool {
	return f.Severity == SeveritySevere && f.Remediation != ""
}

// Validate enforces the structural invariants of a finding.
func (f *Finding) Validate() error {
	if f.Severity == SeveritySevere && f.Remediation == "" {
		return fmt.Errorf("finding %q: severe findings require a remediation step", f.Title)
	}
	if f.OccurrenceCount < 1 {
		return fmt.Errorf("finding %q: occurrence_count must be >= 1", f.Title)
	}
	return nil
}

// Absorb merges another occurrence of the same logical finding into
// this one: count grows, the seen window widens, and entity/event sets
// union.
func (f *Finding) Absorb(other *Finding) {
	f.OccurrenceCount += other.OccurrenceCount
	if other.FirstSeen.Before(f.FirstSeen) {
		f.FirstSeen = other.FirstSeen
	}
	if other.LastSeen.After(f.LastSeen) {
		f.LastSeen = other.LastSeen
	}
	f.AffectedEntities = unionStrings(f.AffectedEntities, other.AffectedEntities)
	f.SourceEventIDs = unionStrings(f.SourceEventIDs, other.SourceEventIDs)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
