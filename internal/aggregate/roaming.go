package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/unifi-insight/reporter/internal/model"
)

// DefaultFlapThreshold is the roam count per client that counts as
// flapping within one run window.
const DefaultFlapThreshold = 5

var roamEventTypes = map[string]bool{
	"EVT_WU_Roam":      true,
	"EVT_WU_RoamRadio": true,
}

// FlapDetector groups roaming events by client MAC and reports clients
// that bounced between access points too often.
type FlapDetector struct {
	Threshold int
}

// NewFlapDetector applies the default threshold when n <= 0.
func NewFlapDetector(n int) *FlapDetector {
	if n <= 0 {
		n = DefaultFlapThreshold
	}
	return &FlapDetector{Threshold: n}
}

func (d *FlapDetector) Name() string { return "roaming-flap" }

// Aggregate emits one MEDIUM finding per flapping client, listing the
// APs the client traversed and the event count.
func (d *FlapDetector) Aggregate(entries []model.LogEntry, _ []model.Finding) []model.Finding {
	type group struct {
		events []*model.LogEntry
		aps    map[string]struct{}
	}
	groups := make(map[string]*group)
	var clientOrder []string

	for i := range entries {
		e := &entries[i]
		if !roamEventTypes[e.EventType] {
			continue
		}
		client := clientOf(e)
		if client == "" {
			continue
		}
		g, ok := groups[client]
		if !ok {
			g = &group{aps: make(map[string]struct{})}
			groups[client] = g
			clientOrder = append(clientOrder, client)
		}
		g.events = append(g.events, e)
		for _, key := range []string{"ap_from", "ap_to", "ap_name"} {
			if v, ok := e.Raw[key].(string); ok && v != "" {
				g.aps[v] = struct{}{}
			}
		}
	}

	var findings []model.Finding
	for _, client := range clientOrder {
		g := groups[client]
		if len(g.events) < d.Threshold {
			continue
		}

		aps := make([]string, 0, len(g.aps))
		for ap := range g.aps {
			aps = append(aps, ap)
		}
		sort.Strings(aps)

		ids := make([]string, 0, len(g.events))
		first, last := g.events[0].Timestamp, g.events[0].Timestamp
		for _, e := range g.events {
			ids = append(ids, e.ID)
			if e.Timestamp.Before(first) {
				first = e.Timestamp
			}
			if e.Timestamp.After(last) {
				last = e.Timestamp
			}
		}

		findings = append(findings, model.Finding{
			ID:       uuid.NewString(),
			Category: model.CategoryWireless,
			Severity: model.SeverityMedium,
			Title:    fmt.Sprintf("Client %s is flapping between access points", client),
			Description: fmt.Sprintf(
				"Client %s roamed %d times during the reporting window across: %s. Frequent roaming usually indicates borderline coverage or sticky-client behavior.",
				client, len(g.events), strings.Join(aps, ", ")),
			OccurrenceCount:  len(g.events),
			FirstSeen:        first,
			LastSeen:         last,
			AffectedEntities: []string{client},
			SourceEventIDs:   ids,
			Metadata:         map[string]string{"aggregator": d.Name()},
		})
	}
	return findings
}

func clientOf(e *model.LogEntry) string {
	if v, ok := e.Raw["user"].(string); ok && v != "" {
		return model.NormalizeMAC(v)
	}
	if v, ok := e.Raw["client"].(string); ok && v != "" {
		return model.NormalizeMAC(v)
	}
	return ""
}
