package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unifi-insight/reporter/internal/metrics"
	"github.com/unifi-insight/reporter/internal/model"
)

type fakeCollector struct {
	name    string
	entries []model.LogEntry
	err     error
	calls   int
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Collect(context.Context, model.Window) ([]model.LogEntry, error) {
	f.calls++
	return f.entries, f.err
}

func entryAt(ts time.Time, msg, mac string, src model.Source) model.LogEntry {
	return model.LogEntry{
		ID:        fmt.Sprintf("%s-%d-%s", src, ts.UnixNano(), msg),
		Timestamp: ts,
		Source:    src,
		EventType: "EVT_Test",
		DeviceMAC: mac,
		Message:   msg,
	}
}

func testWindow() model.Window {
	return model.Window{
		Start: time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC),
	}
}

func TestOverlappingSourcesDeduplicated(t *testing.T) {
	w := testWindow()
	base := w.Start.Add(time.Hour)

	var pushEntries, restEntries []model.LogEntry
	// Push saw 3 events; REST returns 12 where 3 share (ts,msg,mac)
	// with the push ones.
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		pushEntries = append(pushEntries, entryAt(ts, fmt.Sprintf("evt-%d", i), "aa:bb:cc:dd:ee:01", model.SourcePush))
		restEntries = append(restEntries, entryAt(ts, fmt.Sprintf("evt-%d", i), "aa:bb:cc:dd:ee:01", model.SourceREST))
	}
	for i := 3; i < 12; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		restEntries = append(restEntries, entryAt(ts, fmt.Sprintf("evt-%d", i), "aa:bb:cc:dd:ee:02", model.SourceREST))
	}

	push := &fakeCollector{name: "PUSH", entries: pushEntries}
	rest := &fakeCollector{name: "REST", entries: restEntries}
	o := NewOrchestrator(push, rest, nil, DefaultMinEntries, nil, zap.NewNop())

	got, err := o.Collect(context.Background(), w)
	require.NoError(t, err)
	assert.Len(t, got, 12)

	// Monotonically non-decreasing timestamps.
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
	}
	// Duplicates resolved in favor of the higher-priority source.
	assert.Equal(t, model.SourcePush, got[0].Source)
}

func TestFallThroughToShellWhenInsufficient(t *testing.T) {
	w := testWindow()
	push := &fakeCollector{name: "PUSH", err: errors.New("not connected")}
	rest := &fakeCollector{name: "REST", entries: []model.LogEntry{
		entryAt(w.Start.Add(time.Minute), "one", "aa:bb:cc:dd:ee:01", model.SourceREST),
	}}
	shell := &fakeCollector{name: "SHELL", entries: []model.LogEntry{
		entryAt(w.Start.Add(2*time.Minute), "two", "aa:bb:cc:dd:ee:02", model.SourceShell),
	}}

	o := NewOrchestrator(push, rest, shell, 10, nil, zap.NewNop())
	got, err := o.Collect(context.Background(), w)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, shell.calls)
}

func TestSufficientPushSkipsFallbacks(t *testing.T) {
	w := testWindow()
	var entries []model.LogEntry
	for i := 0; i < 15; i++ {
		entries = append(entries, entryAt(w.Start.Add(time.Duration(i)*time.Minute),
			fmt.Sprintf("evt-%d", i), "aa:bb:cc:dd:ee:01", model.SourcePush))
	}
	push := &fakeCollector{name: "PUSH", entries: entries}
	rest := &fakeCollector{name: "REST"}
	shell := &fakeCollector{name: "SHELL"}

	o := NewOrchestrator(push, rest, shell, 10, nil, zap.NewNop())
	got, err := o.Collect(context.Background(), w)
	require.NoError(t, err)
	assert.Len(t, got, 15)
	assert.Equal(t, 0, rest.calls)
	assert.Equal(t, 0, shell.calls)
}

func TestAllSourcesFailed(t *testing.T) {
	push := &fakeCollector{name: "PUSH", err: errors.New("down")}
	rest := &fakeCollector{name: "REST", err: errors.New("down")}
	shell := &fakeCollector{name: "SHELL", err: errors.New("down")}

	o := NewOrchestrator(push, rest, shell, 10, nil, zap.NewNop())
	_, err := o.Collect(context.Background(), testWindow())
	require.ErrorIs(t, err, ErrAllSourcesFailed)
}

func TestPartialFailureIsNormal(t *testing.T) {
	w := testWindow()
	push := &fakeCollector{name: "PUSH", err: errors.New("down")}
	rest := &fakeCollector{name: "REST", entries: []model.LogEntry{
		entryAt(w.Start.Add(time.Minute), "one", "aa:bb:cc:dd:ee:01", model.SourceREST),
	}}

	o := NewOrchestrator(push, rest, nil, 10, nil, zap.NewNop())
	got, err := o.Collect(context.Background(), w)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSourceFailuresRecorded(t *testing.T) {
	w := testWindow()
	mets := metrics.NewMetricsWith(prometheus.NewRegistry())
	push := &fakeCollector{name: "PUSH", err: errors.New("not connected")}
	rest := &fakeCollector{name: "REST", entries: []model.LogEntry{
		entryAt(w.Start.Add(time.Minute), "one", "aa:bb:cc:dd:ee:01", model.SourceREST),
	}}

	o := NewOrchestrator(push, rest, nil, 10, mets, zap.NewNop())
	_, err := o.Collect(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(mets.SourceFailures.WithLabelValues("PUSH")))
	assert.Equal(t, 0.0, testutil.ToFloat64(mets.SourceFailures.WithLabelValues("REST")))
}

func TestTimestampTieBreaksBySourcePriority(t *testing.T) {
	w := testWindow()
	ts := w.Start.Add(time.Hour)
	shellFirst := []model.LogEntry{entryAt(ts, "same-time-a", "aa:bb:cc:dd:ee:03", model.SourceShell)}
	restSecond := []model.LogEntry{entryAt(ts, "same-time-b", "aa:bb:cc:dd:ee:04", model.SourceREST)}

	push := &fakeCollector{name: "PUSH", err: errors.New("down")}
	rest := &fakeCollector{name: "REST", entries: restSecond}
	shell := &fakeCollector{name: "SHELL", entries: shellFirst}

	o := NewOrchestrator(push, rest, shell, 10, nil, zap.NewNop())
	got, err := o.Collect(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.SourceREST, got[0].Source)
	assert.Equal(t, model.SourceShell, got[1].Source)
}
