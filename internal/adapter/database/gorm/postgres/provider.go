// Package postgres registers the PostgreSQL dialector.
package postgres

import (
	"fmt"

	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	gormadapter "github.com/tigerroll/weatherdw/internal/adapter/database/gorm"
)

const dbType = "postgres"

func init() {
	gormadapter.RegisterDialector(dbType, func(cfg database.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds a libpq keyword/value DSN.
func ConnectionString(c database.DatabaseConfig) string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
}

// PostgresDBProvider provides gorm connections to PostgreSQL.
type PostgresDBProvider struct {
	*gormadapter.BaseProvider
}

func NewProvider(configs map[string]database.DatabaseConfig) database.DBProvider {
	return &PostgresDBProvider{BaseProvider: gormadapter.NewBaseProvider(configs, dbType)}
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
		),
	),
)
