package model

import "time"

// Window is the half-open time interval one run processes.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// IntegrationSection is additive report content from one external
// integration. A failed integration still produces a section, tagged
// with Error.
type IntegrationSection struct {
	Name    string            `json:"name"`
	Title   string            `json:"title"`
	Data    map[string]string `json:"data,omitempty"`
	Lines   []string          `json:"lines,omitempty"`
	Error   string            `json:"error,omitempty"`
	Elapsed time.Duration     `json:"elapsed_ns"`
}

// Report is the output of one pipeline run.
type Report struct {
	SiteName            string               `json:"site_name"`
	ControllerType      string               `json:"controller_type"`
	PeriodStart         time.Time            `json:"period_start"`
	PeriodEnd           time.Time            `json:"period_end"`
	GeneratedAt         time.Time            `json:"generated_at"`
	Findings            []Finding            `json:"findings"`
	IntegrationSections []IntegrationSection `json:"integration_sections,omitempty"`
}

// SevereCount returns the number of SEVERE findings. Counts are derived
// on demand, never stored.
func (r *Report) SevereCount() int { return r.countBySeverity(SeveritySevere) }

// MediumCount returns the number of MEDIUM findings.
func (r *Report) MediumCount() int { return r.countBySeverity(SeverityMedium) }

// LowCount returns the number of LOW findings.
func (r *Report) LowCount() int { return r.countBySeverity(SeverityLow) }

func (r *Report) countBySeverity(s Severity) int {
	n := 0
	for i := range r.Findings {
		if r.Findings[i].Severity == s {
			n++
		}
	}
	return n
}

// IsEmpty reports whether the run surfaced nothing new.
func (r *Report) IsEmpty() bool {
	return len(r.Findings) == 0
}

// LastEventTime returns the latest LastSeen across findings, or the
// zero time when the report is empty.
func (r *Report) LastEventTime() time.Time {
	var last time.Time
	for i := range r.Findings {
		if r.Findings[i].LastSeen.After(last) {
			last = r.Findings[i].LastSeen
		}
	}
	return last
}
