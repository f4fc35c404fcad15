package health

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	w := NewWriter(filepath.Join(t.TempDir(), "health.json"), zaptest.NewLogger(t))
	w.now = func() time.Time { return time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC) }
	return w
}

func TestHealthyRoundTrip(t *testing.T) {
	w := newTestWriter(t)
	require.NoError(t, w.Healthy())

	s, ok := w.Read()
	require.True(t, ok)
	assert.Equal(t, StatusHealthy, s.Status)
	assert.Equal(t, time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC), s.LastRunAt)
	assert.Empty(t, s.LastError)
}

func TestUnhealthyCarriesError(t *testing.T) {
	w := newTestWriter(t)
	require.NoError(t, w.Unhealthy(errors.New("smtp send: connection refused")))

	s, ok := w.Read()
	require.True(t, ok)
	assert.Equal(t, StatusUnhealthy, s.Status)
	assert.Equal(t, "smtp send: connection refused", s.LastError)
}

func TestUnhealthyThenHealthyClearsError(t *testing.T) {
	w := newTestWriter(t)
	require.NoError(t, w.Unhealthy(errors.New("boom")))
	require.NoError(t, w.Healthy())

	s, ok := w.Read()
	require.True(t, ok)
	assert.Equal(t, StatusHealthy, s.Status)
	assert.Empty(t, s.LastError)
}

func TestReadAbsentOrCorrupt(t *testing.T) {
	w := newTestWriter(t)
	_, ok := w.Read()
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(w.path, []byte("{not json"), 0o644))
	_, ok = w.Read()
	assert.False(t, ok)
}

func TestNoTempFileLeftBehind(t *testing.T) {
	w := newTestWriter(t)
	require.NoError(t, w.Healthy())

	entries, err := os.ReadDir(filepath.Dir(w.path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "health.json", entries[0].Name())
}
