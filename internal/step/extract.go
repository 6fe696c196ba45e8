package step

import (
	"context"

	"github.com/tigerroll/weatherdw/internal/catalog"
	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// extractCoordinates loads the point catalog. A configured catalog path
// takes precedence over the job property.
type extractCoordinates struct {
	path string
}

func NewExtractCoordinatesBuilder(d Deps) job.TaskletBuilder {
	return func(props map[string]string) (job.Tasklet, error) {
		p, err := bindProperties(props)
		if err != nil {
			return nil, err
		}
		path := d.Config.Weather.Pipeline.CatalogPath
		if path == "" {
			path = p.CatalogPath
		}
		if path == "" {
			return nil, exception.New(moduleName, exception.KindConfig, "no catalog path: set job property 'catalogPath' or WEATHER_CATALOG_PATH", nil)
		}
		return &extractCoordinates{path: path}, nil
	}
}

func (t *extractCoordinates) Execute(ctx context.Context, se *job.StepExecution) (job.ExitStatus, error) {
	c, err := catalog.Load(t.path)
	if err != nil {
		return job.ExitFailed, err
	}
	se.ExecutionContext().Put(KeyPoints, c.Points)
	return job.ExitCompleted, nil
}

// extractWeather fetches every point. Fetch failures are carried in the
// results and never fail the step.
type extractWeather struct {
	deps  Deps
	props Properties
}

func NewExtractWeatherBuilder(d Deps) job.TaskletBuilder {
	return func(props map[string]string) (job.Tasklet, error) {
		p, err := bindProperties(props)
		if err != nil {
			return nil, err
		}
		if _, err := p.fetchKind(); err != nil {
			return nil, err
		}
		return &extractWeather{deps: d, props: p}, nil
	}
}

func (t *extractWeather) Execute(ctx context.Context, se *job.StepExecution) (job.ExitStatus, error) {
	kind, _ := t.props.fetchKind()
	pts, err := points(se)
	if err != nil {
		return job.ExitFailed, err
	}

	results := t.deps.Fetcher.FetchAll(ctx, kind, pts)
	if err := ctx.Err(); err != nil {
		return job.ExitStopped, err
	}
	se.ExecutionContext().Put(KeyResults, results)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Infof("Fetched %s weather for %d of %d points.", kind, len(results)-failed, len(results))
	if failed > 0 {
		return job.ExitCompletedWithFailures, nil
	}
	return job.ExitCompleted, nil
}
