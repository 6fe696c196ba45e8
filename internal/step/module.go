package step

import (
	"go.uber.org/fx"

	"github.com/tigerroll/weatherdw/internal/job"
)

// Tasklet refs used in job definitions.
const (
	RefMigrateSchema      = "migrateSchema"
	RefExtractCoordinates = "extractCoordinates"
	RefExtractWeather     = "extractWeather"
	RefLoadWeather        = "loadWeather"
	RefTransform          = "transform"
	RefReport             = "report"
	RefExportForecast     = "exportForecast"
)

func provide(ref string, newBuilder func(Deps) job.TaskletBuilder) fx.Option {
	return fx.Provide(func(d Deps) job.TaskletResult {
		return job.ProvideTasklet(ref, newBuilder(d))
	})
}

// Module registers every tasklet with the job runner.
var Module = fx.Module("step",
	provide(RefMigrateSchema, NewMigrateSchemaBuilder),
	provide(RefExtractCoordinates, NewExtractCoordinatesBuilder),
	provide(RefExtractWeather, NewExtractWeatherBuilder),
	provide(RefLoadWeather, NewLoadWeatherBuilder),
	provide(RefTransform, NewTransformBuilder),
	provide(RefReport, NewReportBuilder),
	provide(RefExportForecast, NewExportForecastBuilder),
)
