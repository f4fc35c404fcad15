package rules

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unifi-insight/reporter/internal/model"
)

// Engine evaluates every entry against the registry and rolls up
// findings that share (rule, affected entity).
type Engine struct {
	registry *Registry
	logger   *zap.Logger
}

// NewEngine wraps a populated registry.
func NewEngine(registry *Registry, logger *zap.Logger) *Engine {
	return &Engine{registry: registry, logger: logger.Named("rules")}
}

// rollupKey identifies one logical finding across events.
type rollupKey struct {
	rule   string
	entity string
}

// Evaluate classifies the entries. All rules matching an event emit;
// a rule that panics while rendering is logged with the offending
// event and skipped, never aborting the engine.
func (en *Engine) Evaluate(entries []model.LogEntry) []model.Finding {
	rolled := make(map[rollupKey]*model.Finding)
	var order []rollupKey

	for i := range entries {
		entry := &entries[i]
		for _, rule := range en.registry.RulesFor(entry.EventType) {
			if !rule.Matches(entry) {
				continue
			}
			finding, err := en.apply(rule, entry)
			if err != nil {
				en.logger.Error("rule evaluation failed, skipping event",
					zap.String("rule", rule.Name),
					zap.String("event_id", entry.ID),
					zap.String("event_type", entry.EventType),
					zap.Error(err))
				continue
			}

			key := rollupKey{rule: rule.Name, entity: firstEntity(finding)}
			if existing, ok := rolled[key]; ok {
				existing.Absorb(finding)
				continue
			}
			rolled[key] = finding
			order = append(order, key)
		}
	}

	findings := make([]model.Finding, 0, len(order))
	for _, key := range order {
		findings = append(findings, *rolled[key])
	}
	return findings
}

// apply renders one rule against one entry. Panics inside template
// rendering are converted to errors so a single bad rule cannot take
// the run down.
func (en *Engine) apply(rule *Rule, entry *model.LogEntry) (f *model.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			f = nil
			err = fmt.Errorf("rule %q panicked: %v", rule.Name, r)
		}
	}()

	ctx := BuildContext(entry)
	finding := &model.Finding{
		ID:              uuid.NewString(),
		Category:        rule.Category,
		Severity:        rule.Severity,
		Title:           Render(rule.Title, ctx),
		Description:     Render(rule.Description, ctx),
		OccurrenceCount: 1,
		FirstSeen:       entry.Timestamp,
		LastSeen:        entry.Timestamp,
		SourceEventIDs:  []string{entry.ID},
		Metadata:        map[string]string{"rule": rule.Name},
	}
	if rule.Remediation != "" {
		finding.Remediation = Render(rule.Remediation, ctx)
	}
	if entity := entityFor(entry, ctx); entity != "" {
		finding.AffectedEntities = []string{entity}
	}
	if rule.Annotate != nil {
		rule.Annotate(entry, finding)
	}
	if err := finding.Validate(); err != nil {
		return nil, err
	}
	return finding, nil
}

func firstEntity(f *model.Finding) string {
	if len(f.AffectedEntities) > 0 {
		return f.AffectedEntities[0]
	}
	return ""
}
