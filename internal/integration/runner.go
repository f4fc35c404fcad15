package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unifi-insight/reporter/internal/circuitbreaker"
	"github.com/unifi-insight/reporter/internal/metrics"
	"github.com/unifi-insight/reporter/internal/model"
)

// DefaultTimeout bounds one integration's Fetch.
const DefaultTimeout = 30 * time.Second

// Result is what the runner hands back: one section per configured
// integration (successful or error-tagged) plus the error map for the
// driver's logs.
type Result struct {
	Sections []model.IntegrationSection
	Errors   map[string]error
}

// Runner executes all configured integrations concurrently with
// per-integration timeouts and circuit breakers. A panic, timeout, or
// error in one integration never affects the others.
type Runner struct {
	integrations []Integration
	breakers     *circuitbreaker.Manager
	timeout      time.Duration
	metrics      *metrics.Metrics // may be nil
	logger       *zap.Logger
}

// NewRunner wires the fan-out. breakers may be shared across runs so
// failure streaks survive between scheduled invocations.
func NewRunner(integrations []Integration, breakers *circuitbreaker.Manager, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		integrations: integrations,
		breakers:     breakers,
		timeout:      timeout,
		metrics:      m,
		logger:       logger.Named("integrations"),
	}
}

// Warnings surfaces non-fatal configuration warnings at startup.
func (r *Runner) Warnings() []string {
	var out []string
	for _, in := range r.integrations {
		warning, err := in.ValidateConfig()
		if err != nil {
			out = append(out, fmt.Sprintf("%s: %v", in.Name(), err))
			continue
		}
		if warning != "" {
			out = append(out, fmt.Sprintf("%s: %s", in.Name(), warning))
		}
	}
	return out
}

// Run fans out and joins within the parent context. Sections come back
// in integration order regardless of completion order.
func (r *Runner) Run(ctx context.Context, window model.Window) Result {
	sections := make([]model.IntegrationSection, len(r.integrations))
	errs := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, in := range r.integrations {
		wg.Add(1)
		go func(idx int, in Integration) {
			defer wg.Done()
			section, err := r.runOne(ctx, in, window)
			if r.metrics != nil {
				r.metrics.RecordIntegration(in.Name(), section.Elapsed)
			}
			mu.Lock()
			sections[idx] = section
			if err != nil {
				errs[in.Name()] = err
			}
			mu.Unlock()
		}(i, in)
	}
	wg.Wait()

	return Result{Sections: sections, Errors: errs}
}

// runOne executes a single integration under its breaker and timeout,
// converting every failure mode (error, deadline, panic, open breaker)
// into an error-tagged section.
func (r *Runner) runOne(ctx context.Context, in Integration, window model.Window) (section model.IntegrationSection, err error) {
	start := time.Now()
	section = model.IntegrationSection{Name: in.Name(), Title: in.Name()}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("integration panicked: %v", rec)
			section.Error = err.Error()
			section.Elapsed = time.Since(start)
			r.logger.Error("integration panicked",
				zap.String("integration", in.Name()), zap.Any("panic", rec))
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	breaker := r.breakers.Get(in.Name())
	var fetched *model.IntegrationSection
	err = breaker.Execute(fetchCtx, func(c context.Context) error {
		var ferr error
		fetched, ferr = in.Fetch(c, window)
		return ferr
	})
	section.Elapsed = time.Since(start)

	switch {
	case err == nil && fetched != nil:
		fetched.Elapsed = section.Elapsed
		if fetched.Name == "" {
			fetched.Name = in.Name()
		}
		r.logger.Info("integration succeeded",
			zap.String("integration", in.Name()), zap.Duration("elapsed", section.Elapsed))
		return *fetched, nil
	case err == nil:
		err = fmt.Errorf("integration returned no section")
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("timeout after %s", r.timeout)
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		err = fmt.Errorf("circuit_open: %w", err)
	}

	section.Error = err.Error()
	r.logger.Warn("integration failed",
		zap.String("integration", in.Name()),
		zap.String("breaker_state", breaker.State().String()),
		zap.Error(err))
	return section, err
}
