// Package scheduler runs the configured jobs on a cron schedule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

const moduleName = "scheduler"

// JobRunner runs jobs by name.
type JobRunner interface {
	Run(ctx context.Context, jobName string) (*job.JobExecution, error)
	JobNames() []string
}

// Scheduler triggers every scheduled job on each cron tick. Jobs of one tick
// run one after another; a tick that is still running when the next one is
// due is skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    JobRunner
	cron      string
	jobs      []string

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. With no jobs listed, every defined job is run.
func New(runner JobRunner, cron string, jobs []string, loc *time.Location) *Scheduler {
	if len(jobs) == 0 {
		jobs = runner.JobNames()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(loc),
		runner:    runner,
		cron:      cron,
		jobs:      jobs,
	}
}

// Jobs returns the names of the scheduled jobs.
func (s *Scheduler) Jobs() []string { return s.jobs }

// Start registers the cron trigger and starts the scheduler in the
// background. Runs are cancelled when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return exception.New(moduleName, exception.KindConfig, "no jobs to schedule", nil)
	}
	for _, name := range s.jobs {
		if !contains(s.runner.JobNames(), name) {
			return exception.Newf(moduleName, exception.KindConfig, "scheduled job '%s' is not defined", name)
		}
	}

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	cronJob, err := s.scheduler.Cron(s.cron).SingletonMode().Do(func() { s.RunOnce(s.runContext()) })
	if err != nil {
		return exception.New(moduleName, exception.KindConfig, "invalid cron expression '"+s.cron+"'", err)
	}
	s.scheduler.StartAsync()
	logger.Infof("Scheduled %v with cron '%s'; next run at %s.", s.jobs, s.cron, cronJob.NextRun().Format(time.RFC3339))
	return nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// RunOnce runs every scheduled job once and returns how many did not
// complete. Failures are logged; they never stop the schedule.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	failed := 0
	for _, name := range s.jobs {
		if ctx.Err() != nil {
			logger.Warnf("Scheduled run cancelled before job '%s'.", name)
			return failed + 1
		}
		exec, err := s.runner.Run(ctx, name)
		if err != nil {
			failed++
			logger.Errorf("Scheduled job '%s' failed: %v", name, err)
			continue
		}
		logger.Infof("Scheduled job '%s' finished with %s in %s.", name, exec.ExitStatus, exec.Duration().Round(time.Millisecond))
	}
	return failed
}

// Stop cancels running jobs and stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.scheduler.Stop()
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
