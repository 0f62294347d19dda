// Package sweep periodically reclaims images that were uploaded but never
// attached to an article.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is the part of simplenews.Service the job needs
type Sweeper interface {
	SweepOrphans(ctx context.Context, cutoff time.Time) (int, error)
}

// Job runs SweepOrphans on a cron schedule. Only images older than the grace
// period are considered, so uploads waiting for a create or update request
// are left alone.
type Job struct {
	sweeper  Sweeper
	grace    time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
	cron     *cron.Cron
	schedule cron.Schedule
}

// Option configures a Job
type Option func(*Job)

// WithLogger sets the job logger
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		j.logger = logger
	}
}

// WithTimeout bounds a single sweep run
func WithTimeout(d time.Duration) Option {
	return func(j *Job) {
		j.timeout = d
	}
}

// WithClock overrides the time source used to compute the cutoff
func WithClock(now func() time.Time) Option {
	return func(j *Job) {
		j.now = now
	}
}

// New parses schedule as a standard five-field cron expression (descriptors
// such as "@hourly" are accepted too).
func New(sweeper Sweeper, schedule string, grace time.Duration, opts ...Option) (*Job, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper is required")
	}
	if grace <= 0 {
		return nil, fmt.Errorf("grace period must be positive, got %s", grace)
	}

	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	j := &Job{
		sweeper:  sweeper,
		grace:    grace,
		timeout:  5 * time.Minute,
		logger:   slog.Default(),
		now:      time.Now,
		schedule: sched,
	}
	for _, opt := range opts {
		opt(j)
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(j.logger.Handler(), slog.LevelWarn))
	j.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	j.cron.Schedule(sched, cron.FuncJob(func() {
		_, _ = j.RunOnce(context.Background())
	}))
	return j, nil
}

// Start begins running the schedule in the background
func (j *Job) Start() {
	j.logger.Info("Orphan sweep scheduled", "grace", j.grace, "next_run", j.schedule.Next(j.now()))
	j.cron.Start()
}

// Stop prevents new runs and waits for a running sweep, or until ctx is done
func (j *Job) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single sweep and returns the number of reclaimed images
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	cutoff := j.now().Add(-j.grace)
	start := time.Now()
	n, err := j.sweeper.SweepOrphans(ctx, cutoff)
	if err != nil {
		j.logger.ErrorContext(ctx, "Orphan sweep failed", "cutoff", cutoff, "error", err)
		return 0, err
	}

	if n > 0 {
		j.logger.InfoContext(ctx, "Orphan sweep reclaimed images", "count", n, "cutoff", cutoff, "duration", time.Since(start))
	} else {
		j.logger.DebugContext(ctx, "Orphan sweep found nothing", "cutoff", cutoff)
	}
	return n, nil
}
