// Package rules classifies normalized log entries into findings. A
// rule is a declarative mapping from an event shape to a finding
// template; the engine dispatches by event type, renders templates
// against a per-event context, and rolls duplicate findings up.
package rules

import (
	"regexp"

	"github.com/unifi-insight/reporter/internal/model"
)

// Rule is an immutable classification record. EventTypes selects which
// entries the rule sees; Pattern, when set, additionally filters on
// the message text. Templates use {name} placeholders resolved against
// the event context; unresolved names render empty.
type Rule struct {
	Name        string
	EventTypes  []string
	Pattern     *regexp.Regexp
	Category    model.Category
	Severity    model.Severity
	Title       string
	Description string
	Remediation string

	// Annotate, when set, runs after template rendering and may attach
	// metadata derived from the raw payload (e.g. IPS signature flags).
	Annotate func(*model.LogEntry, *model.Finding)
}

// Matches reports whether the rule applies to the entry. The event
// type was already matched by the registry; only the optional message
// pattern remains.
func (r *Rule) Matches(e *model.LogEntry) bool {
	if r.Pattern == nil {
		return true
	}
	return r.Pattern.MatchString(e.Message)
}
