package rules

// Registry indexes rules by event type for O(1) dispatch while
// preserving registration order within each type, which makes
// evaluation deterministic.
type Registry struct {
	byType map[string][]*Rule
	all    []*Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string][]*Rule)}
}

// Register appends a rule under each of its event types.
func (r *Registry) Register(rule *Rule) {
	r.all = append(r.all, rule)
	for _, et := range rule.EventTypes {
		r.byType[et] = append(r.byType[et], rule)
	}
}

// RulesFor returns the rules registered for an event type, in
// registration order.
func (r *Registry) RulesFor(eventType string) []*Rule {
	return r.byType[eventType]
}

// Len reports how many rules are registered.
func (r *Registry) Len() int { return len(r.all) }
