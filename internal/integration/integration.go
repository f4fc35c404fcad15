// Package integration runs the optional external data providers that
// enrich a report. Integrations are additive: their sections never
// alter findings derived from controller data, and a failing
// integration is isolated behind its own circuit breaker and timeout.
package integration

import (
	"context"

	"github.com/unifi-insight/reporter/internal/model"
)

// Integration is one optional external data provider.
type Integration interface {
	// Name is the stable identifier used for breakers, logs, and the
	// report section.
	Name() string
	// IsConfigured decides whether the integration participates at
	// all; unconfigured integrations are silently skipped.
	IsConfigured() bool
	// ValidateConfig returns a non-fatal warning for partial or
	// suspect configuration, and an error only for unusable settings.
	ValidateConfig() (warning string, err error)
	// Fetch is the only I/O entry point and must honor the context
	// deadline.
	Fetch(ctx context.Context, window model.Window) (*model.IntegrationSection, error)
}

// Constructor builds an integration from resolved settings; registered
// in the Registry keyed by name.
type Constructor func() Integration

// Registry holds the known integration constructors.
type Registry struct {
	constructors map[string]Constructor
	order        []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under its name. Last registration wins.
func (r *Registry) Register(name string, c Constructor) {
	if _, exists := r.constructors[name]; !exists {
		r.order = append(r.order, name)
	}
	r.constructors[name] = c
}

// Build instantiates every registered integration that reports itself
// configured, in registration order.
func (r *Registry) Build() []Integration {
	var out []Integration
	for _, name := range r.order {
		in := r.constructors[name]()
		if in != nil && in.IsConfigured() {
			out = append(out, in)
		}
	}
	return out
}
