package job

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// JobListener is notified around every job run.
type JobListener interface {
	BeforeJob(ctx context.Context, jobExecution *JobExecution)
	AfterJob(ctx context.Context, jobExecution *JobExecution)
}

// StepListener is notified around every step run.
type StepListener interface {
	BeforeStep(ctx context.Context, stepExecution *StepExecution)
	AfterStep(ctx context.Context, stepExecution *StepExecution)
}

// LoggingListener logs job and step boundaries.
type LoggingListener struct{}

func NewLoggingListener() *LoggingListener {
	return &LoggingListener{}
}

func (l *LoggingListener) BeforeJob(ctx context.Context, e *JobExecution) {
	logger.Infof("Job '%s' started (run %s).", e.JobName, e.ID)
}

func (l *LoggingListener) AfterJob(ctx context.Context, e *JobExecution) {
	if e.Status == StatusCompleted {
		logger.Infof("Job '%s' completed in %s (run %s).", e.JobName, e.Duration(), e.ID)
		return
	}
	logger.Errorf("Job '%s' finished with status %s after %s (run %s): %v", e.JobName, e.Status, e.Duration(), e.ID, e.Err())
}

func (l *LoggingListener) BeforeStep(ctx context.Context, s *StepExecution) {
	logger.Debugf("Step '%s' started.", s.StepName)
}

func (l *LoggingListener) AfterStep(ctx context.Context, s *StepExecution) {
	if s.Err != nil {
		logger.Warnf("Step '%s' %s after %d attempt(s): %v", s.StepName, s.Status, s.Attempts, s.Err)
		return
	}
	logger.Infof("Step '%s' exited %s in %s.", s.StepName, s.ExitStatus, s.Duration())
}

var (
	_ JobListener  = (*LoggingListener)(nil)
	_ StepListener = (*LoggingListener)(nil)
)

// ListenerResult contributes one listener to both value groups.
type ListenerResult struct {
	fx.Out
	Job  JobListener  `group:"job_listeners"`
	Step StepListener `group:"step_listeners"`
}

func provideLoggingListener() ListenerResult {
	l := NewLoggingListener()
	return ListenerResult{Job: l, Step: l}
}
