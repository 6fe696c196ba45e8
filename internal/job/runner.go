package job

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

const tracerName = "github.com/tigerroll/weatherdw/internal/job"

// maxFlowSteps bounds a run whose transitions loop.
const maxFlowSteps = 100

// RunnerParams are the runner's dependencies.
type RunnerParams struct {
	fx.In

	Definitions   Definitions
	Tasklets      []NamedTasklet `group:"tasklets"`
	JobListeners  []JobListener  `group:"job_listeners"`
	StepListeners []StepListener `group:"step_listeners"`
}

// Runner executes job flows.
type Runner struct {
	definitions   Definitions
	builders      map[string]TaskletBuilder
	jobListeners  []JobListener
	stepListeners []StepListener
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewRunner(p RunnerParams) *Runner {
	builders := make(map[string]TaskletBuilder, len(p.Tasklets))
	for _, t := range p.Tasklets {
		if _, dup := builders[t.Ref]; dup {
			logger.Warnf("Tasklet '%s' registered twice; the last registration wins.", t.Ref)
		}
		builders[t.Ref] = t.Builder
	}
	return &Runner{
		definitions:   p.Definitions,
		builders:      builders,
		jobListeners:  p.JobListeners,
		stepListeners: p.StepListeners,
		now:           time.Now,
		sleep:         sleepContext,
	}
}

// JobNames lists the runnable jobs.
func (r *Runner) JobNames() []string {
	return r.definitions.Names()
}

// Run executes the named job to the end of its flow. The returned error is
// nil only when the run COMPLETED; the execution is returned whenever the job
// exists.
func (r *Runner) Run(ctx context.Context, jobName string) (*JobExecution, error) {
	def, ok := r.definitions[jobName]
	if !ok {
		return nil, exception.Newf(moduleName, exception.KindConfig, "job '%s' is not defined (known: %v)", jobName, r.JobNames())
	}

	exec := NewJobExecution(def.ID, def.Properties)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "job "+def.ID, trace.WithAttributes(
		attribute.String("job.name", def.ID),
		attribute.String("job.execution_id", exec.ID),
	))
	defer span.End()

	exec.markStarted(r.now())
	for _, l := range r.jobListeners {
		l.BeforeJob(ctx, exec)
	}

	status := r.runFlow(ctx, def, exec)
	exec.finish(status, r.now())

	span.SetAttributes(attribute.String("job.status", string(exec.Status)))
	if err := exec.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(exec.Status))
	}
	for _, l := range r.jobListeners {
		l.AfterJob(ctx, exec)
	}
	return exec, exec.Err()
}

func (r *Runner) runFlow(ctx context.Context, def Definition, exec *JobExecution) BatchStatus {
	current := def.Flow.StartElement
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			logger.Warnf("Job '%s' interrupted before step '%s': %v", def.ID, current, err)
			exec.addFailure(err)
			return StatusStopped
		}
		if n >= maxFlowSteps {
			exec.addFailure(exception.Newf(moduleName, exception.KindInternal,
				"job '%s' exceeded %d step executions", def.ID, maxFlowSteps))
			return StatusFailed
		}

		step := def.Flow.Elements[current]
		se := r.executeStep(ctx, def, exec, step)
		if se.Status == StatusStopped {
			return StatusStopped
		}

		t, found := step.transitionFor(se.ExitStatus)
		if !found {
			if se.Err != nil {
				return StatusFailed
			}
			return StatusCompleted
		}
		switch {
		case t.End:
			return StatusCompleted
		case t.Fail:
			if se.Err == nil {
				exec.addFailure(exception.Newf(moduleName, exception.KindInternal,
					"step '%s' exited %s and the flow failed the job", step.ID, se.ExitStatus))
			}
			return StatusFailed
		case t.Stop:
			return StatusStopped
		}
		logger.Debugf("Step '%s' exited %s; next is '%s'.", step.ID, se.ExitStatus, t.To)
		current = t.To
	}
}

func (r *Runner) executeStep(ctx context.Context, def Definition, exec *JobExecution, step Step) *StepExecution {
	se := exec.newStepExecution(step.ID, r.now())
	ctx, span := otel.Tracer(tracerName).Start(ctx, "step "+step.ID, trace.WithAttributes(
		attribute.String("job.name", def.ID),
		attribute.String("step.name", step.ID),
	))
	defer span.End()

	for _, l := range r.stepListeners {
		l.BeforeStep(ctx, se)
	}

	status, err := r.attempt(ctx, def, step, se)
	se.finish(status, err, r.now())
	if err != nil {
		exec.addFailure(exception.New(moduleName, exception.KindOf(err), "step '"+step.ID+"' failed", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(se.Status))
	}
	span.SetAttributes(
		attribute.String("step.exit_status", string(se.ExitStatus)),
		attribute.Int("step.attempts", se.Attempts),
	)

	for _, l := range r.stepListeners {
		l.AfterStep(ctx, se)
	}
	return se
}

func (r *Runner) attempt(ctx context.Context, def Definition, step Step, se *StepExecution) (ExitStatus, error) {
	builder, ok := r.builders[step.Tasklet.Ref]
	if !ok {
		return ExitFailed, exception.Newf(moduleName, exception.KindConfig, "no tasklet registered as '%s'", step.Tasklet.Ref)
	}
	tasklet, err := builder(mergeProperties(def.Properties, step.Tasklet.Properties))
	if err != nil {
		return ExitFailed, err
	}

	policy := step.Retry
	for attempt := 1; ; attempt++ {
		se.Attempts = attempt
		status, err := tasklet.Execute(ctx, se)
		if err == nil {
			return status, nil
		}
		if attempt >= policy.Attempts() || !policy.ShouldRetry(err) {
			return status, err
		}
		wait := policy.Backoff(attempt)
		logger.Warnf("Step '%s' attempt %d/%d failed, retrying in %s: %v", step.ID, attempt, policy.Attempts(), wait, err)
		if sleepErr := r.sleep(ctx, wait); sleepErr != nil {
			return ExitStopped, sleepErr
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
