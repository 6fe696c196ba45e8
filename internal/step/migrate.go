package step

import (
	"context"

	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// migrateSchema brings the job's warehouse schema up to the latest version.
type migrateSchema struct {
	deps  Deps
	props Properties
}

func NewMigrateSchemaBuilder(d Deps) job.TaskletBuilder {
	return func(props map[string]string) (job.Tasklet, error) {
		p, err := bindProperties(props)
		if err != nil {
			return nil, err
		}
		return &migrateSchema{deps: d, props: p}, nil
	}
}

func (t *migrateSchema) Execute(ctx context.Context, se *job.StepExecution) (job.ExitStatus, error) {
	schema, err := t.deps.schema(t.props)
	if err != nil {
		return job.ExitFailed, err
	}
	if err := t.deps.Migrator.Up(ctx, schema); err != nil {
		return job.ExitFailed, err
	}
	version, dirty, err := t.deps.Migrator.Version(ctx, schema)
	if err != nil {
		return job.ExitFailed, err
	}
	logger.Infof("Schema '%s' is at version %d (dirty=%t).", schema, version, dirty)
	return job.ExitCompleted, nil
}
