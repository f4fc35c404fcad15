// Package circuitbreaker guards the optional integrations: after a
// streak of consecutive failures an integration's breaker opens and
// calls fail fast, until a cooldown lets a half-open probe through.
// State is in-memory only and clears on process restart.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // failing fast
	StateHalfOpen              // probing recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen short-circuits calls while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Defaults for integration breakers.
const (
	DefaultFailMax      = 3
	DefaultResetTimeout = 60 * time.Second
)

// Config tunes one breaker.
type Config struct {
	Name string
	// FailMax consecutive failures trip the breaker to open.
	FailMax int
	// ResetTimeout is how long the breaker stays open before allowing
	// a half-open probe.
	ResetTimeout time.Duration
	// OnStateChange is called on every transition.
	OnStateChange func(name string, from, to State)
}

func (c *Config) applyDefaults() {
	if c.FailMax <= 0 {
		c.FailMax = DefaultFailMax
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
}

// Counts tracks the failure streak and totals.
type Counts struct {
	Requests            uint32
	TotalSuccesses      uint32
	TotalFailures       uint32
	ConsecutiveFailures uint32
}

// CircuitBreaker fails fast after FailMax consecutive failures and
// probes recovery after ResetTimeout.
type CircuitBreaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time

	now func() time.Time
}

// New builds a breaker, applying defaults for unset fields.
func New(cfg Config) *CircuitBreaker {
	cfg.applyDefaults()
	return &CircuitBreaker{cfg: cfg, state: StateClosed, now: time.Now}
}

// Name returns the breaker's identifier.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// State returns the current position, accounting for cooldown expiry.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// Counts returns a copy of the counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Execute runs fn under the breaker. While open it returns
// ErrCircuitOpen without calling fn. A panic in fn counts as a failure
// and is re-raised.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.after(false)
			panic(r)
		}
	}()

	err := fn(ctx)
	cb.after(err == nil)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateOpen:
		return fmt.Errorf("%w: %s (retry after %s)", ErrCircuitOpen, cb.cfg.Name,
			cb.openedAt.Add(cb.cfg.ResetTimeout).Sub(cb.now()).Round(time.Second))
	default:
		cb.counts.Requests++
		return nil
	}
}

func (cb *CircuitBreaker) after(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.currentState()
	if success {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen {
			cb.setState(StateClosed)
		}
		return
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	switch state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= uint32(cb.cfg.FailMax) {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		// The probe failed; back to open for another cooldown.
		cb.setState(StateOpen)
	}
}

// currentState promotes open to half-open once the cooldown elapsed.
// Callers hold mu.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.setState(StateHalfOpen)
	}
	return cb.state
}

// setState transitions and fires the callback. Callers hold mu.
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	if next == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, prev, next)
	}
}

// Manager hands out one breaker per integration name.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	defaults Config
}

// NewManager creates a manager whose breakers inherit the given
// defaults.
func NewManager(defaults Config) *Manager {
	defaults.applyDefaults()
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
	}
}

// Get returns the breaker for name, creating it on first use.
func (m *Manager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok = m.breakers[name]; ok {
		return cb
	}
	cfg := m.defaults
	cfg.Name = name
	cb = New(cfg)
	m.breakers[name] = cb
	return cb
}

// States snapshots every breaker's position for metrics and logs.
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.breakers))
	for name, cb := range m.breakers {
		out[name] = cb.State()
	}
	return out
}
