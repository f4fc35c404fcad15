package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func newTestBreaker(t *testing.T) (*CircuitBreaker, *time.Time) {
	t.Helper()
	now := time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC)
	cb := New(Config{Name: "test"})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestOpensOnThirdConsecutiveFailure(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())

	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	// While open, calls short-circuit without running fn.
	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestSuccessResetsStreak(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, ok))
	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State(), "streak was broken by the success")
}

func TestHalfOpenProbeAfterResetTimeout(t *testing.T) {
	cb, now := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cb.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, cb.State())

	// Still inside the cooldown: short-circuit.
	*now = now.Add(30 * time.Second)
	require.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)

	// After the cooldown the first call probes and closes on success.
	*now = now.Add(31 * time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestFailedProbeReopens(t *testing.T) {
	cb, now := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cb.Execute(ctx, fail)
	}
	*now = now.Add(DefaultResetTimeout + time.Second)
	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestPanicCountsAsFailure(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Panics(t, func() {
			cb.Execute(ctx, func(context.Context) error { panic("kaboom") })
		})
	}
	assert.Equal(t, StateOpen, cb.State())
}

func TestManagerReusesBreakerPerName(t *testing.T) {
	m := NewManager(Config{})
	a := m.Get("cloudflare")
	b := m.Get("cloudflare")
	c := m.Get("other")
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	states := m.States()
	assert.Len(t, states, 2)
	assert.Equal(t, StateClosed, states["cloudflare"])
}
