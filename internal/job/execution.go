package job

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of a job or step execution.
type BatchStatus string

const (
	StatusStarting  BatchStatus = "STARTING"
	StatusStarted   BatchStatus = "STARTED"
	StatusCompleted BatchStatus = "COMPLETED"
	StatusFailed    BatchStatus = "FAILED"
	StatusStopped   BatchStatus = "STOPPED"
)

// ExitStatus is what a step reports to the flow; transitions match on it.
type ExitStatus string

const (
	ExitCompleted             ExitStatus = "COMPLETED"
	ExitCompletedWithFailures ExitStatus = "COMPLETED_WITH_FAILURES"
	ExitFailed                ExitStatus = "FAILED"
	ExitStopped               ExitStatus = "STOPPED"
	ExitNoOp                  ExitStatus = "NOOP"
)

// ExecutionContext carries data between the steps of one job run.
type ExecutionContext map[string]interface{}

func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put stores value under key, replacing any previous value.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get retrieves the value for key.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	val, ok := ec[key]
	return val, ok
}

// GetString retrieves the value for key as a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	val, ok := ec[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt retrieves the value for key as an int.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	val, ok := ec[key]
	if !ok {
		return 0, false
	}
	switch n := val.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// JobExecution is one run of a job.
type JobExecution struct {
	ID               string
	JobName          string
	Properties       map[string]string
	Status           BatchStatus
	ExitStatus       ExitStatus
	StartTime        time.Time
	EndTime          time.Time
	CurrentStepName  string
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
	Failures         []error
}

// NewJobExecution creates a run in STARTING state with a fresh ID.
func NewJobExecution(jobName string, properties map[string]string) *JobExecution {
	props := make(map[string]string, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	return &JobExecution{
		ID:               uuid.NewString(),
		JobName:          jobName,
		Properties:       props,
		Status:           StatusStarting,
		ExecutionContext: NewExecutionContext(),
	}
}

func (e *JobExecution) markStarted(now time.Time) {
	e.Status = StatusStarted
	e.StartTime = now
}

// finish closes the run. A run that recorded failures is FAILED even if the
// flow routed past them.
func (e *JobExecution) finish(status BatchStatus, now time.Time) {
	if status == StatusCompleted && len(e.Failures) > 0 {
		status = StatusFailed
	}
	e.Status = status
	switch status {
	case StatusCompleted:
		e.ExitStatus = ExitCompleted
	case StatusStopped:
		e.ExitStatus = ExitStopped
	default:
		e.ExitStatus = ExitFailed
	}
	e.EndTime = now
}

func (e *JobExecution) addFailure(err error) {
	if err != nil {
		e.Failures = append(e.Failures, err)
	}
}

// Err returns the joined failures of a FAILED run, the stop cause of a
// STOPPED run, and nil otherwise.
func (e *JobExecution) Err() error {
	switch e.Status {
	case StatusFailed:
		if len(e.Failures) == 0 {
			return errors.New("job failed")
		}
		return errors.Join(e.Failures...)
	case StatusStopped:
		if len(e.Failures) > 0 {
			return errors.Join(e.Failures...)
		}
		return context.Canceled
	}
	return nil
}

// Duration is the run time; zero until the run has finished.
func (e *JobExecution) Duration() time.Duration {
	if e.EndTime.IsZero() {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}

// StepExecution is one run of a step within a JobExecution.
type StepExecution struct {
	ID           string
	StepName     string
	JobExecution *JobExecution
	Status       BatchStatus
	ExitStatus   ExitStatus
	Attempts     int
	StartTime    time.Time
	EndTime      time.Time
	Err          error
}

func (e *JobExecution) newStepExecution(stepName string, now time.Time) *StepExecution {
	se := &StepExecution{
		ID:           uuid.NewString(),
		StepName:     stepName,
		JobExecution: e,
		Status:       StatusStarted,
		StartTime:    now,
	}
	e.StepExecutions = append(e.StepExecutions, se)
	e.CurrentStepName = stepName
	return se
}

// ExecutionContext is the job-level context shared by every step of the run.
func (s *StepExecution) ExecutionContext() ExecutionContext {
	return s.JobExecution.ExecutionContext
}

// Property returns a job property by key.
func (s *StepExecution) Property(key string) string {
	return s.JobExecution.Properties[key]
}

func (s *StepExecution) finish(status ExitStatus, err error, now time.Time) {
	s.EndTime = now
	s.Err = err
	switch {
	case err == nil:
		s.Status = StatusCompleted
		if status == "" {
			status = ExitCompleted
		}
		s.ExitStatus = status
	case errors.Is(err, context.Canceled):
		s.Status = StatusStopped
		s.ExitStatus = ExitStopped
	default:
		s.Status = StatusFailed
		s.ExitStatus = ExitFailed
	}
}

// Duration is the step run time.
func (s *StepExecution) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}
