// Package step implements the tasklets the weather jobs are composed of:
// migrateSchema, extractCoordinates, extractWeather, loadWeather, transform,
// report and exportForecast. Steps hand their results to later steps through
// the job's ExecutionContext.
package step

import (
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/domain/entity"
	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/metrics"
	"github.com/tigerroll/weatherdw/internal/migration"
	"github.com/tigerroll/weatherdw/internal/pipeline"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/warehouse"
)

const moduleName = "step"

// ExecutionContext keys.
const (
	KeyPoints            = "points"
	KeyResults           = "results"
	KeySummary           = "summary"
	KeyValidationWarning = "validationWarning"
)

// Deps are the collaborators shared by every tasklet.
type Deps struct {
	fx.In

	Config    *config.Config
	Conn      database.DBConnection
	TxManager database.TransactionManager
	Migrator  migration.Migrator
	Fetcher   pipeline.Fetcher
	Recorder  *metrics.Recorder
}

// Properties are the job properties common to the weather steps.
type Properties struct {
	Kind        string `yaml:"kind"`
	Schema      string `yaml:"schema"`
	CatalogPath string `yaml:"catalogPath"`
}

func bindProperties(props map[string]string) (Properties, error) {
	var p Properties
	if err := job.BindProperties(props, &p); err != nil {
		return p, err
	}
	return p, nil
}

// fetchKind parses the kind property.
func (p Properties) fetchKind() (entity.FetchKind, error) {
	kind, err := entity.ParseFetchKind(p.Kind)
	if err != nil {
		return "", exception.New(moduleName, exception.KindConfig, "invalid job property 'kind'", err)
	}
	return kind, nil
}

// schema returns the job's schema property, falling back to the configured
// warehouse schema, validated against the allow-list.
func (d Deps) schema(p Properties) (warehouse.Schema, error) {
	name := p.Schema
	if name == "" {
		name = d.Config.Weather.Database.Schema
	}
	s, err := warehouse.ParseSchema(name, d.Config.Weather.Pipeline.AllowedSchemas)
	if err != nil {
		return warehouse.Schema{}, exception.New(moduleName, exception.KindConfig, "invalid warehouse schema", err)
	}
	return s, nil
}

func (d Deps) dialect() (warehouse.Dialect, error) {
	dialect, err := warehouse.DialectFor(d.Config.Weather.Database.Type)
	if err != nil {
		return nil, exception.New(moduleName, exception.KindConfig, "unsupported database type", err)
	}
	return dialect, nil
}

func (d Deps) now() time.Time {
	return time.Now().In(d.Config.Location())
}

func points(se *job.StepExecution) ([]entity.Point, error) {
	v, ok := se.ExecutionContext().Get(KeyPoints)
	pts, typed := v.([]entity.Point)
	if !ok || !typed {
		return nil, exception.New(moduleName, exception.KindInternal, "no coordinates in the execution context; extractCoordinates must run first", nil)
	}
	return pts, nil
}

func summary(se *job.StepExecution) (pipeline.Summary, bool) {
	v, ok := se.ExecutionContext().Get(KeySummary)
	if !ok {
		return pipeline.Summary{}, false
	}
	s, ok := v.(pipeline.Summary)
	return s, ok
}
