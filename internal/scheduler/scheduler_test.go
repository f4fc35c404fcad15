package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newHourly(t *testing.T, now time.Time) *Scheduler {
	t.Helper()
	s, err := New("0 * * * *", time.UTC, func(context.Context) error { return nil }, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	return s
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("not a cron", time.UTC, func(context.Context) error { return nil }, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestPrevFire(t *testing.T) {
	s := newHourly(t, time.Date(2026, 1, 25, 12, 30, 0, 0, time.UTC))
	prev, ok := s.prevFire()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC), prev)
}

func TestNeedsCatchUpWithinGrace(t *testing.T) {
	now := time.Date(2026, 1, 25, 12, 30, 0, 0, time.UTC)
	s := newHourly(t, now)

	// The 12:00 fire was missed and is only 30 minutes old.
	lastRun := time.Date(2026, 1, 25, 11, 0, 0, 0, time.UTC)
	assert.True(t, s.NeedsCatchUp(lastRun))
}

func TestNeedsCatchUpExpiredGrace(t *testing.T) {
	// 13:30: the 13:00 fire is 30 minutes old, but lastRun predates
	// even the 12:00 fire. Only the most recent miss counts, and it is
	// inside the grace window, so exactly one catch-up run happens.
	now := time.Date(2026, 1, 25, 13, 30, 0, 0, time.UTC)
	s := newHourly(t, now)
	assert.True(t, s.NeedsCatchUp(time.Date(2026, 1, 25, 10, 0, 0, 0, time.UTC)))

	// With a fire older than the grace window, no catch-up.
	s.grace = 10 * time.Minute
	assert.False(t, s.NeedsCatchUp(time.Date(2026, 1, 25, 10, 0, 0, 0, time.UTC)))
}

func TestNeedsCatchUpNotMissed(t *testing.T) {
	now := time.Date(2026, 1, 25, 12, 30, 0, 0, time.UTC)
	s := newHourly(t, now)

	// lastRun is after the 12:00 fire: nothing was missed.
	assert.False(t, s.NeedsCatchUp(time.Date(2026, 1, 25, 12, 5, 0, 0, time.UTC)))
}

func TestRunFiresCatchUpThenStops(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := New("0 * * * *", time.UTC, func(context.Context) error {
		ran <- struct{}{}
		return nil
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		// Zero lastRun with the default clock: the previous fire is
		// within the last hour, so a catch-up run happens immediately.
		s.Run(ctx, time.Time{})
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("catch-up run never fired")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
