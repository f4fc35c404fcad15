package integration

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
	"go.uber.org/zap/zaptest"

	"github.com/unifi-insight/reporter/internal/circuitbreaker"
	"github.com/unifi-insight/reporter/internal/metrics"
	"github.com/unifi-insight/reporter/internal/model"
)

type fakeIntegration struct {
	name       string
	configured bool
	warning    string
	fetch      func(ctx context.Context, window model.Window) (*model.IntegrationSection, error)
}

func (f *fakeIntegration) Name() string       { return f.name }
func (f *fakeIntegration) IsConfigured() bool { return f.configured }
func (f *fakeIntegration) ValidateConfig() (string, error) {
	return f.warning, nil
}
func (f *fakeIntegration) Fetch(ctx context.Context, window model.Window) (*model.IntegrationSection, error) {
	return f.fetch(ctx, window)
}

func okIntegration(name string) *fakeIntegration {
	return &fakeIntegration{
		name:       name,
		configured: true,
		fetch: func(context.Context, model.Window) (*model.IntegrationSection, error) {
			return &model.IntegrationSection{
				Name:  name,
				Title: name,
				Lines: []string{"all good"},
			}, nil
		},
	}
}

func testWindow() model.Window {
	end := time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC)
	return model.Window{Start: end.Add(-time.Hour), End: end}
}

func TestRunnerCollectsSectionsInOrder(t *testing.T) {
	r := NewRunner(
		[]Integration{okIntegration("alpha"), okIntegration("beta")},
		circuitbreaker.NewManager(circuitbreaker.Config{}),
		time.Second,
		nil,
		zaptest.NewLogger(t),
	)

	res := r.Run(context.Background(), testWindow())
	require.Len(t, res.Sections, 2)
	assert.Equal(t, "alpha", res.Sections[0].Name)
	assert.Equal(t, "beta", res.Sections[1].Name)
	assert.Empty(t, res.Errors)
}

func TestRunnerTimeoutProducesErrorSection(t *testing.T) {
	slow := &fakeIntegration{
		name:       "slow",
		configured: true,
		fetch: func(ctx context.Context, _ model.Window) (*model.IntegrationSection, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	breakers := circuitbreaker.NewManager(circuitbreaker.Config{})
	r := NewRunner(
		[]Integration{slow, okIntegration("fast")},
		breakers,
		50*time.Millisecond,
		nil,
		zaptest.NewLogger(t),
	)

	res := r.Run(context.Background(), testWindow())
	require.Len(t, res.Sections, 2)

	// The slow integration's section carries the timeout; the fast one
	// is untouched.
	assert.Contains(t, res.Sections[0].Error, "timeout")
	assert.Empty(t, res.Sections[1].Error)
	require.Contains(t, res.Errors, "slow")

	// One timeout is one failure, not an open breaker.
	assert.Equal(t, circuitbreaker.StateClosed, breakers.Get("slow").State())
	assert.Equal(t, uint32(1), breakers.Get("slow").Counts().ConsecutiveFailures)
}

func TestRunnerPanicIsolated(t *testing.T) {
	angry := &fakeIntegration{
		name:       "angry",
		configured: true,
		fetch: func(context.Context, model.Window) (*model.IntegrationSection, error) {
			panic("unexpected schema")
		},
	}
	r := NewRunner(
		[]Integration{angry, okIntegration("calm")},
		circuitbreaker.NewManager(circuitbreaker.Config{}),
		time.Second,
		nil,
		zaptest.NewLogger(t),
	)

	res := r.Run(context.Background(), testWindow())
	require.Len(t, res.Sections, 2)
	assert.Contains(t, res.Sections[0].Error, "panic")
	assert.Empty(t, res.Sections[1].Error)
}

func TestRunnerOpenBreakerShortCircuits(t *testing.T) {
	calls := 0
	failing := &fakeIntegration{
		name:       "flaky",
		configured: true,
		fetch: func(context.Context, model.Window) (*model.IntegrationSection, error) {
			calls++
			return nil, errors.New("upstream 502")
		},
	}
	breakers := circuitbreaker.NewManager(circuitbreaker.Config{})
	r := NewRunner([]Integration{failing}, breakers, time.Second, nil, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		r.Run(context.Background(), testWindow())
	}
	require.Equal(t, 3, calls)
	require.Equal(t, circuitbreaker.StateOpen, breakers.Get("flaky").State())

	// Fourth run: the breaker short-circuits without calling Fetch, and
	// the section says so.
	res := r.Run(context.Background(), testWindow())
	assert.Equal(t, 3, calls)
	assert.Contains(t, res.Sections[0].Error, "circuit_open")
}

func TestRunnerRecordsFetchDurations(t *testing.T) {
	mets := metrics.NewMetricsWith(prometheus.NewRegistry())
	r := NewRunner(
		[]Integration{okIntegration("alpha"), okIntegration("beta")},
		circuitbreaker.NewManager(circuitbreaker.Config{}),
		time.Second,
		mets,
		zaptest.NewLogger(t),
	)

	r.Run(context.Background(), testWindow())
	assert.Equal(t, 2, testutil.CollectAndCount(mets.IntegrationDuration),
		"one duration series per integration")
}

func TestRunnerWarnings(t *testing.T) {
	in := &fakeIntegration{name: "partial", configured: false, warning: "zone_id missing"}
	r := NewRunner([]Integration{in}, circuitbreaker.NewManager(circuitbreaker.Config{}), time.Second, nil, zaptest.NewLogger(t))

	warnings := r.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "partial: zone_id missing", warnings[0])
}

func TestRegistryBuildSkipsUnconfigured(t *testing.T) {
	reg := NewRegistry()
	for i, configured := range []bool{true, false, true} {
		name := fmt.Sprintf("int-%d", i)
		c := configured
		reg.Register(name, func() Integration {
			return &fakeIntegration{name: name, configured: c}
		})
	}

	built := reg.Build()
	require.Len(t, built, 2)
	assert.Equal(t, "int-0", built[0].Name())
	assert.Equal(t, "int-2", built[1].Name())
}
