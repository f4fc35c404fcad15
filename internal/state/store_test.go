package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ".last_run.json")
	return NewStore(path, zap.NewNop()), path
}

func TestReadAbsent(t *testing.T) {
	s, _ := newTestStore(t)
	_, ok, err := s.Read()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteReadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	want := time.Date(2026, 1, 25, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(Checkpoint{LastDeliveredEventTime: want}))

	cp, ok, err := s.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, SchemaVersion, cp.SchemaVersion)
	assert.True(t, cp.LastDeliveredEventTime.Equal(want))
}

func TestCorruptFileTreatedAsAbsent(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	_, ok, err := s.Read()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteOverwritesAtomically(t *testing.T) {
	s, path := newTestStore(t)
	first := time.Date(2026, 1, 25, 8, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	require.NoError(t, s.Write(Checkpoint{LastDeliveredEventTime: first}))
	require.NoError(t, s.Write(Checkpoint{LastDeliveredEventTime: second}))

	cp, ok, err := s.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cp.LastDeliveredEventTime.Equal(second))

	// No temp files should survive a successful write.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCrashLeftoverTempDoesNotBreakRead(t *testing.T) {
	// A crash between temp write and rename leaves a stray temp file;
	// the store must still return the previous valid checkpoint.
	s, path := newTestStore(t)
	want := time.Date(2026, 1, 25, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(Checkpoint{LastDeliveredEventTime: want}))
	require.NoError(t, os.WriteFile(path+".tmp-crash", []byte("partial"), 0o644))

	cp, ok, err := s.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cp.LastDeliveredEventTime.Equal(want))
}
