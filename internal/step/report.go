package step

import (
	"context"

	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// report logs the run summary and publishes it as metrics. A failed push is
// logged only.
type report struct {
	deps Deps
}

func NewReportBuilder(d Deps) job.TaskletBuilder {
	return func(map[string]string) (job.Tasklet, error) {
		return &report{deps: d}, nil
	}
}

func (t *report) Execute(ctx context.Context, se *job.StepExecution) (job.ExitStatus, error) {
	s, ok := summary(se)
	if !ok {
		logger.Warnf("Job '%s' produced no load summary (run %s).", se.JobExecution.JobName, se.JobExecution.ID)
		return job.ExitNoOp, nil
	}
	if w, ok := se.ExecutionContext().GetString(KeyValidationWarning); ok {
		s.ValidationWarning = w
		se.ExecutionContext().Put(KeySummary, s)
	}

	logger.Infof("%s", s.String())
	if t.deps.Recorder == nil {
		return job.ExitCompleted, nil
	}
	t.deps.Recorder.RecordSummary(s)
	if err := t.deps.Recorder.Push(ctx, s.JobName); err != nil {
		logger.Warnf("Summary metrics were not pushed: %v", err)
	}
	return job.ExitCompleted, nil
}
