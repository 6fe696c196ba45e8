package job

import (
	"context"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/fx"

	"github.com/tigerroll/weatherdw/internal/support/exception"
)

// Tasklet is the unit of work behind a step. It returns the exit status the
// flow routes on; a non-nil error fails the step.
type Tasklet interface {
	Execute(ctx context.Context, stepExecution *StepExecution) (ExitStatus, error)
}

// TaskletFunc adapts a function to Tasklet.
type TaskletFunc func(ctx context.Context, stepExecution *StepExecution) (ExitStatus, error)

func (f TaskletFunc) Execute(ctx context.Context, stepExecution *StepExecution) (ExitStatus, error) {
	return f(ctx, stepExecution)
}

// TaskletBuilder creates a tasklet from the merged job and step properties.
type TaskletBuilder func(properties map[string]string) (Tasklet, error)

// NamedTasklet registers a builder under the ref used in job definitions.
type NamedTasklet struct {
	Ref     string
	Builder TaskletBuilder
}

// TaskletResult is the fx result for contributing a tasklet to the registry.
type TaskletResult struct {
	fx.Out
	Tasklet NamedTasklet `group:"tasklets"`
}

// ProvideTasklet wraps a builder for the "tasklets" value group.
func ProvideTasklet(ref string, builder TaskletBuilder) TaskletResult {
	return TaskletResult{Tasklet: NamedTasklet{Ref: ref, Builder: builder}}
}

// BindProperties decodes string properties into target using its yaml tags.
// Numeric and boolean fields are converted from their string form.
func BindProperties(properties map[string]string, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return exception.New(moduleName, exception.KindInternal, "failed to create property decoder", err)
	}
	if err := decoder.Decode(properties); err != nil {
		return exception.New(moduleName, exception.KindConfig, "failed to bind tasklet properties", err)
	}
	return nil
}

func mergeProperties(job, step map[string]string) map[string]string {
	merged := make(map[string]string, len(job)+len(step))
	for k, v := range job {
		merged[k] = v
	}
	for k, v := range step {
		merged[k] = v
	}
	return merged
}
