// Package app assembles the fx application: configuration, warehouse
// connection, job runner, tasklets, metrics, dashboard API and scheduler.
package app

import (
	"os"
	"strings"

	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/weatherdw/internal/adapter/database/gorm"
	"github.com/tigerroll/weatherdw/internal/adapter/database/gorm/mysql"
	"github.com/tigerroll/weatherdw/internal/adapter/database/gorm/postgres"
	"github.com/tigerroll/weatherdw/internal/adapter/database/gorm/sqlite"
	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/metrics"
	"github.com/tigerroll/weatherdw/internal/migration"
	"github.com/tigerroll/weatherdw/internal/openmeteo"
	"github.com/tigerroll/weatherdw/internal/pipeline"
	"github.com/tigerroll/weatherdw/internal/scheduler"
	"github.com/tigerroll/weatherdw/internal/server"
	"github.com/tigerroll/weatherdw/internal/step"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// DBProviderModules maps a database type to the module registering its
// provider.
var DBProviderModules = map[string]fx.Option{
	"postgres": postgres.Module,
	"mysql":    mysql.Module,
	"sqlite":   sqlite.Module,
}

// dbProviderOptions selects providers from DB_ADAPTORS (comma-separated);
// all of them when unset.
func dbProviderOptions() []fx.Option {
	adaptors := os.Getenv("DB_ADAPTORS")
	if adaptors == "" {
		adaptors = "postgres,mysql,sqlite"
	}
	var options []fx.Option
	for _, name := range strings.Split(adaptors, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if m, ok := DBProviderModules[name]; ok {
			options = append(options, m)
			logger.Debugf("DB provider '%s' registered.", name)
		} else {
			logger.Warnf("DB provider '%s' is not supported. Skipping.", name)
		}
	}
	return options
}

func newFetcher(cfg *config.Config) pipeline.Fetcher {
	return openmeteo.NewClient(cfg.Weather.API, cfg.Weather.System.Timezone)
}

// Module wires every component shared by the commands. The database
// providers are chosen when it is called.
func Module() fx.Option {
	return fx.Options(
		config.Module,
		gormadapter.Module,
		fx.Options(dbProviderOptions()...),
		fx.Provide(
			migration.NewMigrator,
			newFetcher,
		),
		metrics.Module,
		job.Module,
		step.Module,
		server.Module,
		scheduler.Module,
	)
}
