package config

import (
	"go.uber.org/fx"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
)

// Module provides *Config and the named database configurations.
var Module = fx.Options(
	fx.Provide(
		NewConfigProvider,
		func(cfg *Config) map[string]database.DatabaseConfig { return cfg.DatabaseConfigs() },
	),
)
