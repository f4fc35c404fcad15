package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/unifi-insight/reporter/internal/model"
)

// DefaultTopSources caps how many source IPs the threat summary
// enumerates.
const DefaultTopSources = 5

// ThreatSummary groups IPS events by source IP and by signature
// category and emits one summary finding per run that saw threats.
type ThreatSummary struct {
	TopN int
}

// NewThreatSummary applies the default top-N when n <= 0.
func NewThreatSummary(n int) *ThreatSummary {
	if n <= 0 {
		n = DefaultTopSources
	}
	return &ThreatSummary{TopN: n}
}

func (t *ThreatSummary) Name() string { return "threat-summary" }

type threatGroup struct {
	total    int
	blocked  int
	detected int
	cyber    bool
	eventIDs []string
}

// Aggregate builds the per-source rollup. Blocked and detected-only
// counts are kept apart, and any group whose signature IDs fall in the
// Cybersecure reserved range flags the summary.
func (t *ThreatSummary) Aggregate(entries []model.LogEntry, _ []model.Finding) []model.Finding {
	bySource := make(map[string]*threatGroup)
	byCategory := make(map[string]int)
	var srcOrder []string
	var ids []string
	anyCyber := false
	var first, last *model.LogEntry

	for i := range entries {
		e := &entries[i]
		if !model.IsIPSEntry(e) {
			continue
		}
		ev, err := model.ParseIPSEvent(e.Raw)
		if err != nil {
			continue
		}

		src := ev.SrcIP
		if src == "" {
			src = "unknown"
		}
		g, ok := bySource[src]
		if !ok {
			g = &threatGroup{}
			bySource[src] = g
			srcOrder = append(srcOrder, src)
		}
		g.total++
		if ev.Action == model.IPSActionBlocked {
			g.blocked++
		} else {
			g.detected++
		}
		if ev.IsCybersecure {
			g.cyber = true
			anyCyber = true
		}
		g.eventIDs = append(g.eventIDs, e.ID)

		if ev.Category != "" {
			byCategory[ev.Category]++
		}
		ids = append(ids, e.ID)
		if first == nil || e.Timestamp.Before(first.Timestamp) {
			first = e
		}
		if last == nil || e.Timestamp.After(last.Timestamp) {
			last = e
		}
	}

	if len(ids) == 0 {
		return nil
	}

	// Top sources by event count; ties resolve alphabetically so the
	// summary is deterministic.
	sort.SliceStable(srcOrder, func(i, j int) bool {
		a, b := bySource[srcOrder[i]], bySource[srcOrder[j]]
		if a.total != b.total {
			return a.total > b.total
		}
		return srcOrder[i] < srcOrder[j]
	})
	top := srcOrder
	if len(top) > t.TopN {
		top = top[:t.TopN]
	}

	var lines []string
	var entities []string
	for _, src := range top {
		g := bySource[src]
		line := fmt.Sprintf("%s: %d events (%d blocked, %d detected-only)", src, g.total, g.blocked, g.detected)
		if g.cyber {
			line += " [cybersecure]"
		}
		lines = append(lines, line)
		entities = append(entities, src)
	}

	cats := make([]string, 0, len(byCategory))
	for c := range byCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	catParts := make([]string, 0, len(cats))
	for _, c := range cats {
		catParts = append(catParts, fmt.Sprintf("%s (%d)", c, byCategory[c]))
	}

	severity := model.SeverityMedium
	remediation := ""
	if anyCyber {
		severity = model.SeveritySevere
		remediation = "Cybersecure-range signatures fired. Review the enumerated sources, confirm blocks at the gateway, and consider tightening the IPS policy for the affected categories."
	}

	f := model.Finding{
		ID:       uuid.NewString(),
		Category: model.CategorySecurity,
		Severity: severity,
		Title:    fmt.Sprintf("Threat summary: %d IPS events from %d sources", len(ids), len(bySource)),
		Description: fmt.Sprintf("Top sources:\n%s\nCategories: %s",
			strings.Join(lines, "\n"), strings.Join(catParts, ", ")),
		Remediation:      remediation,
		OccurrenceCount:  len(ids),
		FirstSeen:        first.Timestamp,
		LastSeen:         last.Timestamp,
		AffectedEntities: entities,
		SourceEventIDs:   ids,
		Metadata: map[string]string{
			"aggregator":     t.Name(),
			"is_cybersecure": strconv.FormatBool(anyCyber),
		},
	}
	return []model.Finding{f}
}
