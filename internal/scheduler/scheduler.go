package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled work. Returned errors are logged.
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron expressions in a fixed timezone. A job that
// is still running when its next tick arrives skips that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
}

func NewScheduler(loc *time.Location, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	cronLogger := slogAdapter{logger: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Add registers job under spec (standard five-field cron or a descriptor
// such as "@every 1h"). Each run gets its own timeout when timeout > 0.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.run(name, timeout, job)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}

	s.logger.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// Start runs the scheduler until ctx is canceled, then waits for running
// jobs to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))

	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) run(name string, timeout time.Duration, job Job) {
	ctx := s.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	startTime := time.Now()
	s.logger.Info("job started", "job", name)

	if err := job(ctx); err != nil {
		s.logger.Error("job failed", "job", name, "duration", time.Since(startTime), "error", err)
		return
	}

	s.logger.Info("job finished", "job", name, "duration", time.Since(startTime))
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(keysAndValues, "error", err)...)
}
