// Package scheduler runs housekeeping jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler fires registered jobs on their cron schedules. Jobs share the
// context passed to Start and are skipped while a previous firing of the same
// job is still running.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field, plus descriptors like
// "@every 1h".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: slog.Default().With("component", "scheduler"),
		ctx:    context.Background(),
	}
}

// Add registers job. An empty schedule disables the job.
func (s *Scheduler) Add(job Job) error {
	if job.Schedule == "" {
		s.logger.Info("job disabled", "name", job.Name)
		return nil
	}
	_, err := s.cron.AddFunc(job.Schedule, func() {
		s.logger.Debug("cron firing job", "name", job.Name)
		if err := job.Run(s.ctx); err != nil {
			jobFailures.WithLabelValues(job.Name).Inc()
			s.logger.Warn("job failed", "name", job.Name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", job.Name, job.Schedule, err)
	}
	s.logger.Info("scheduled job", "name", job.Name, "schedule", job.Schedule)
	return nil
}

// Start begins firing jobs with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop stops the ticker and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Len returns the number of enabled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}
