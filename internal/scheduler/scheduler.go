// Package scheduler runs the report pipeline on a cron schedule. At
// most one run is in flight at a time: a tick that fires while a run
// is still going is skipped and logged. A run missed while the process
// was down is coalesced into one catch-up run, as long as it was
// missed by less than the grace window.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultGrace is how far past its scheduled time a missed run is
// still made up on startup.
const DefaultGrace = time.Hour

// Job is one pipeline run.
type Job func(ctx context.Context) error

// Scheduler wraps robfig/cron with the reporter's concurrency and
// catch-up policy.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	loc      *time.Location
	job      Job
	grace    time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// New validates the 5-field cron spec against the location and builds
// the scheduler.
func New(spec string, loc *time.Location, job Job, logger *zap.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		spec:     spec,
		schedule: schedule,
		loc:      loc,
		job:      job,
		grace:    DefaultGrace,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
	}, nil
}

// NeedsCatchUp reports whether the run scheduled before now was missed
// (lastRun predates it) recently enough to still be worth making up.
// Any number of missed runs coalesce into the single catch-up.
func (s *Scheduler) NeedsCatchUp(lastRun time.Time) bool {
	prev, ok := s.prevFire()
	if !ok {
		return false
	}
	if !lastRun.Before(prev) {
		return false
	}
	return s.now().Sub(prev) <= s.grace
}

// prevFire walks the schedule forward from a day back to find the most
// recent fire time not after now. cron only exposes Next, so we step.
func (s *Scheduler) prevFire() (time.Time, bool) {
	now := s.now().In(s.loc)
	t := now.Add(-24 * time.Hour)
	var prev time.Time
	found := false
	for i := 0; i < 1500; i++ {
		t = s.schedule.Next(t)
		if t.IsZero() || t.After(now) {
			break
		}
		prev = t
		found = true
	}
	return prev, found
}

// Run blocks until ctx is cancelled, firing the job per the schedule.
// lastRun seeds the catch-up decision; pass the zero time when no
// previous run is known.
func (s *Scheduler) Run(ctx context.Context, lastRun time.Time) {
	if s.NeedsCatchUp(lastRun) {
		s.logger.Info("running missed schedule on startup",
			zap.String("spec", s.spec), zap.Time("last_run", lastRun))
		s.invoke(ctx)
	}

	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(
			cron.SkipIfStillRunning(&cronLogger{s.logger}),
		),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.invoke(ctx) }))
	c.Start()
	s.logger.Info("scheduler started",
		zap.String("spec", s.spec), zap.String("timezone", s.loc.String()))

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) invoke(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err))
	}
}

// cronLogger adapts zap to the cron.Logger interface so skipped ticks
// land in our structured log.
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
