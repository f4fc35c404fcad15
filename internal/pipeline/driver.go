// Package pipeline drives one scheduled report run end to end:
// checkpoint window, concurrent collection and integration fan-out,
// rule evaluation, aggregation, delivery, and — only after delivery
// succeeds — checkpoint advance. Failure at any stage leaves the
// checkpoint untouched so the next run reprocesses the same window.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unifi-insight/reporter/internal/aggregate"
	"github.com/unifi-insight/reporter/internal/circuitbreaker"
	"github.com/unifi-insight/reporter/internal/health"
	"github.com/unifi-insight/reporter/internal/integration"
	"github.com/unifi-insight/reporter/internal/metrics"
	"github.com/unifi-insight/reporter/internal/model"
	"github.com/unifi-insight/reporter/internal/rules"
	"github.com/unifi-insight/reporter/internal/state"
)

// Run-level failure kinds; the CLI maps them to exit codes.
var (
	ErrCollection = errors.New("collection failed")
	ErrDelivery   = errors.New("delivery failed")
)

// entryCollector is the orchestrator's surface the driver needs.
type entryCollector interface {
	Collect(ctx context.Context, window model.Window) ([]model.LogEntry, error)
}

// integrationRunner is the fan-out surface.
type integrationRunner interface {
	Run(ctx context.Context, window model.Window) integration.Result
}

// deliverer is the delivery manager's surface.
type deliverer interface {
	Deliver(ctx context.Context, r *model.Report) error
}

// controller is the slice of the UniFi client the driver itself uses:
// connectivity probing and device state for the health aggregator.
type controller interface {
	Connect(ctx context.Context) error
	Devices(ctx context.Context) ([]map[string]interface{}, error)
	ControllerType() string
	Site() string
}

// Params wires a Driver. Integrations, Breakers, and Metrics may be
// nil; the driver degrades gracefully without them.
type Params struct {
	Store        *state.Store
	Collector    entryCollector
	Engine       *rules.Engine
	Integrations integrationRunner
	Breakers     *circuitbreaker.Manager
	Delivery     deliverer
	Health       *health.Writer
	Metrics      *metrics.Metrics
	Controller   controller
	Logger       *zap.Logger

	// PushDropped reports the push ring buffer's lifetime drop count;
	// nil when push is disabled.
	PushDropped func() uint64

	Lookback      time.Duration
	FlapThreshold int
}

// Driver owns the run loop state.
type Driver struct {
	p           Params
	now         func() time.Time
	lastDropped uint64
}

// NewDriver validates wiring and builds the driver.
func NewDriver(p Params) (*Driver, error) {
	if p.Store == nil || p.Collector == nil || p.Engine == nil || p.Delivery == nil || p.Health == nil {
		return nil, errors.New("pipeline: store, collector, engine, delivery, and health are required")
	}
	if p.Lookback <= 0 {
		p.Lookback = 24 * time.Hour
	}
	if p.FlapThreshold <= 0 {
		p.FlapThreshold = aggregate.DefaultFlapThreshold
	}
	p.Logger = p.Logger.Named("pipeline")
	return &Driver{p: p, now: time.Now}, nil
}

// window computes this run's interval. The checkpoint is pulled back
// by the skew tolerance; an absent or corrupt checkpoint falls back to
// the initial lookback.
func (d *Driver) window() model.Window {
	now := d.now().UTC()
	start := now.Add(-d.p.Lookback)
	if cp, ok, _ := d.p.Store.Read(); ok {
		if s := cp.LastDeliveredEventTime.Add(-state.SkewTolerance); s.After(start) {
			start = s
		}
	}
	return model.Window{Start: start, End: now}
}

// RunOnce executes one complete pipeline run.
func (d *Driver) RunOnce(ctx context.Context) error {
	started := d.now()
	window := d.window()
	d.p.Logger.Info("run started",
		zap.Time("window_start", window.Start), zap.Time("window_end", window.End))

	// Collection and integration fan-out proceed concurrently; device
	// state rides along for the health aggregator.
	var (
		wg      sync.WaitGroup
		entries []model.LogEntry
		collErr error
		intRes  integration.Result
		stats   []model.DeviceStats
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		entries, collErr = d.p.Collector.Collect(ctx, window)
		if collErr == nil && d.p.Controller != nil {
			stats = d.deviceStats(ctx)
		}
	}()
	if d.p.Integrations != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			intRes = d.p.Integrations.Run(ctx, window)
		}()
	}
	wg.Wait()
	d.snapshotBreakers()

	if collErr != nil {
		return d.fail(started, "collection_error", fmt.Errorf("%w: %v", ErrCollection, collErr))
	}
	d.recordEntries(entries)

	findings := d.p.Engine.Evaluate(entries)
	aggs := []aggregate.Aggregator{
		aggregate.NewFlapDetector(d.p.FlapThreshold),
		aggregate.NewThreatSummary(aggregate.DefaultTopSources),
		aggregate.NewDeviceHealth(stats),
	}
	findings = aggregate.Run(aggs, entries, findings)

	report := d.assemble(window, findings, intRes.Sections)
	if d.p.Metrics != nil {
		d.p.Metrics.RecordFindings(report.SevereCount(), report.MediumCount(), report.LowCount())
	}

	if err := d.p.Delivery.Deliver(ctx, report); err != nil {
		return d.fail(started, "delivery_error", fmt.Errorf("%w: %v", ErrDelivery, err))
	}

	// Delivery acknowledged: the checkpoint may advance.
	cp := state.Checkpoint{
		SchemaVersion:          state.SchemaVersion,
		LastDeliveredEventTime: window.End,
	}
	if last := report.LastEventTime(); last.After(cp.LastDeliveredEventTime) {
		cp.LastDeliveredEventTime = last
	}
	if err := d.p.Store.Write(cp); err != nil {
		return d.fail(started, "delivery_error", fmt.Errorf("%w: checkpoint write: %v", ErrDelivery, err))
	}

	if err := d.p.Health.Healthy(); err != nil {
		d.p.Logger.Warn("health file update failed", zap.Error(err))
	}
	if d.p.Metrics != nil {
		d.p.Metrics.RecordRun("success", d.now().Sub(started))
	}
	d.p.Logger.Info("run completed",
		zap.Int("entries", len(entries)),
		zap.Int("findings", len(report.Findings)),
		zap.Time("checkpoint", cp.LastDeliveredEventTime),
		zap.Duration("elapsed", d.now().Sub(started)))
	return nil
}

// Probe validates connectivity for --test mode: it authenticates
// against the controller and lists devices.
func (d *Driver) Probe(ctx context.Context) error {
	if d.p.Controller == nil {
		return errors.New("pipeline: no controller configured")
	}
	if err := d.p.Controller.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCollection, err)
	}
	devices, err := d.p.Controller.Devices(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCollection, err)
	}
	d.p.Logger.Info("controller probe succeeded",
		zap.String("controller_type", d.p.Controller.ControllerType()),
		zap.String("site", d.p.Controller.Site()),
		zap.Int("devices", len(devices)))
	return nil
}

func (d *Driver) fail(started time.Time, outcome string, err error) error {
	if herr := d.p.Health.Unhealthy(err); herr != nil {
		d.p.Logger.Warn("health file update failed", zap.Error(herr))
	}
	if d.p.Metrics != nil {
		d.p.Metrics.RecordRun(outcome, d.now().Sub(started))
	}
	d.p.Logger.Error("run failed", zap.String("outcome", outcome), zap.Error(err))
	return err
}

func (d *Driver) deviceStats(ctx context.Context) []model.DeviceStats {
	raw, err := d.p.Controller.Devices(ctx)
	if err != nil {
		d.p.Logger.Warn("device stats unavailable", zap.Error(err))
		return nil
	}
	stats := make([]model.DeviceStats, 0, len(raw))
	for _, device := range raw {
		stats = append(stats, model.ParseDeviceStats(device))
	}
	return stats
}

func (d *Driver) recordEntries(entries []model.LogEntry) {
	if d.p.Metrics == nil {
		return
	}
	if d.p.PushDropped != nil {
		if dropped := d.p.PushDropped(); dropped > d.lastDropped {
			d.p.Metrics.PushDropped.Add(float64(dropped - d.lastDropped))
			d.lastDropped = dropped
		}
	}
	perSource := map[string]int{}
	for i := range entries {
		perSource[entries[i].Source.String()]++
	}
	for source, n := range perSource {
		d.p.Metrics.RecordCollection(source, n)
	}
}

func (d *Driver) snapshotBreakers() {
	if d.p.Metrics == nil || d.p.Breakers == nil {
		return
	}
	for name, st := range d.p.Breakers.States() {
		d.p.Metrics.SetBreakerState(name, int(st))
	}
}

func (d *Driver) assemble(window model.Window, findings []model.Finding, sections []model.IntegrationSection) *model.Report {
	site := "default"
	controllerType := "Unknown"
	if d.p.Controller != nil {
		site = d.p.Controller.Site()
		controllerType = d.p.Controller.ControllerType()
	}
	return &model.Report{
		SiteName:            site,
		ControllerType:      controllerType,
		PeriodStart:         window.Start,
		PeriodEnd:           window.End,
		GeneratedAt:         d.now().UTC(),
		Findings:            findings,
		IntegrationSections: sections,
	}
}
