// Package metrics exposes the reporter's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the reporter
type Metrics struct {
	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
	LastRunTime prometheus.Gauge

	// Collection metrics
	EntriesCollected *prometheus.CounterVec
	SourceFailures   *prometheus.CounterVec
	PushDropped      prometheus.Counter

	// Finding metrics
	FindingsTotal *prometheus.CounterVec

	// Integration metrics
	IntegrationDuration *prometheus.HistogramVec
	BreakerState        *prometheus.GaugeVec

	// Delivery metrics
	DeliveriesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on an explicit registry; tests use this to
// avoid duplicate-registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reporter_runs_total",
				Help: "Total pipeline runs by outcome",
			},
			[]string{"outcome"}, // outcome: success, collection_error, delivery_error
		),

		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reporter_run_duration_seconds",
				Help:    "Wall-clock duration of one pipeline run",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		LastRunTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "reporter_last_run_timestamp_seconds",
				Help: "Unix time of the most recent run attempt",
			},
		),

		EntriesCollected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reporter_entries_collected_total",
				Help: "Log entries collected per source",
			},
			[]string{"source"}, // source: PUSH, REST, SHELL
		),

		SourceFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reporter_source_failures_total",
				Help: "Collection failures per source",
			},
			[]string{"source"},
		),

		PushDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reporter_push_dropped_total",
				Help: "Push events overwritten because the ring buffer was full",
			},
		),

		FindingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reporter_findings_total",
				Help: "Findings produced per severity",
			},
			[]string{"severity"}, // severity: LOW, MEDIUM, SEVERE
		),

		IntegrationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reporter_integration_duration_seconds",
				Help:    "Fetch duration per integration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"integration"},
		),

		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reporter_breaker_state",
				Help: "Circuit breaker state per integration (0 closed, 1 open, 2 half-open)",
			},
			[]string{"integration"},
		),

		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reporter_deliveries_total",
				Help: "Delivery attempts by channel and outcome",
			},
			[]string{"channel", "outcome"}, // outcome: success, failure
		),
	}
}

// RecordRun records one run attempt with its outcome and duration
func (m *Metrics) RecordRun(outcome string, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.LastRunTime.SetToCurrentTime()
}

// RecordCollection records per-source entry counts
func (m *Metrics) RecordCollection(source string, entries int) {
	m.EntriesCollected.WithLabelValues(source).Add(float64(entries))
}

// RecordSourceFailure records a failed source
func (m *Metrics) RecordSourceFailure(source string) {
	m.SourceFailures.WithLabelValues(source).Inc()
}

// RecordFindings records the severity histogram of a finished report
func (m *Metrics) RecordFindings(severe, medium, low int) {
	m.FindingsTotal.WithLabelValues("SEVERE").Add(float64(severe))
	m.FindingsTotal.WithLabelValues("MEDIUM").Add(float64(medium))
	m.FindingsTotal.WithLabelValues("LOW").Add(float64(low))
}

// RecordIntegration records one integration fetch
func (m *Metrics) RecordIntegration(name string, elapsed time.Duration) {
	m.IntegrationDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// SetBreakerState mirrors a breaker position into the gauge
func (m *Metrics) SetBreakerState(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordDelivery records one delivery attempt
func (m *Metrics) RecordDelivery(channel string, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.DeliveriesTotal.WithLabelValues(channel, outcome).Inc()
}
