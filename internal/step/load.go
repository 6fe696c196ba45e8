package step

import (
	"context"

	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/openmeteo"
	"github.com/tigerroll/weatherdw/internal/pipeline"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/warehouse"
)

// loadWeather writes the fetched results and stores the run Summary.
type loadWeather struct {
	deps  Deps
	props Properties
}

func NewLoadWeatherBuilder(d Deps) job.TaskletBuilder {
	return func(props map[string]string) (job.Tasklet, error) {
		p, err := bindProperties(props)
		if err != nil {
			return nil, err
		}
		if _, err := p.fetchKind(); err != nil {
			return nil, err
		}
		return &loadWeather{deps: d, props: p}, nil
	}
}

func (t *loadWeather) Execute(ctx context.Context, se *job.StepExecution) (job.ExitStatus, error) {
	kind, _ := t.props.fetchKind()
	v, _ := se.ExecutionContext().Get(KeyResults)
	results, ok := v.([]openmeteo.Result)
	if !ok {
		return job.ExitFailed, exception.New(moduleName, exception.KindInternal, "no fetch results in the execution context; extractWeather must run first", nil)
	}
	schema, err := t.deps.schema(t.props)
	if err != nil {
		return job.ExitFailed, err
	}
	dialect, err := t.deps.dialect()
	if err != nil {
		return job.ExitFailed, err
	}

	engine := warehouse.NewEngine(schema, dialect, t.deps.Config.Location())
	loader := pipeline.NewLoader(t.deps.TxManager, engine, warehouse.NewForecastReplacer(t.deps.TxManager, dialect))
	outcomes, cleared, loadErr := loader.Load(ctx, kind, results)
	if loadErr != nil {
		outcomes = pipeline.CompleteOutcomes(outcomes, results, loadErr)
	}

	s := pipeline.Summarize(kind, outcomes, cleared, t.deps.now())
	s.RunID = se.JobExecution.ID
	s.JobName = se.JobExecution.JobName
	s.Schema = schema.Name()
	se.ExecutionContext().Put(KeySummary, s)

	if loadErr != nil {
		return job.ExitFailed, loadErr
	}
	if s.Failed > 0 {
		return job.ExitCompletedWithFailures, nil
	}
	return job.ExitCompleted, nil
}
