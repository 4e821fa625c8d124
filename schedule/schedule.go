// Package schedule owns the process-wide nightly trigger for the
// notification pipeline.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cron "github.com/robfig/cron/v3"

	"tvalert/pipeline"
)

// nightlySpec fires once daily at midnight UTC. Runs are assumed to complete
// well within the 24h period; there is no overlap guard.
const nightlySpec = "0 0 * * *"

// Job is the work fired on each scheduler tick.
type Job interface {
	Run(ctx context.Context) (pipeline.Report, error)
}

// Scheduler wraps a cron instance firing the nightly pipeline run.
type Scheduler struct {
	cron   *cron.Cron
	job    Job
	logger *slog.Logger
}

// New creates a scheduler for the given job. Constructed once at startup;
// consumers receive it by injection, never re-created per request.
func New(job Job, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		job:    job,
		logger: logger,
	}
}

// Start registers the nightly firing and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(nightlySpec, s.fire); err != nil {
		return fmt.Errorf("schedule nightly run: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Nightly scheduler started", "spec", nightlySpec)
	return nil
}

// Stop stops the cron loop and waits for an in-flight firing to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Nightly scheduler stopped")
}

// fire executes one run. A failed or panicking run is logged and never kills
// the process or prevents the next firing.
func (s *Scheduler) fire() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Nightly run panicked", "panic", r)
		}
	}()

	if _, err := s.job.Run(context.Background()); err != nil {
		s.logger.Error("Nightly run failed", "error", err)
	}
}
