// Package mysql registers the MySQL dialector.
package mysql

import (
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	gormadapter "github.com/tigerroll/weatherdw/internal/adapter/database/gorm"
)

const dbType = "mysql"

func init() {
	gormadapter.RegisterDialector(dbType, func(cfg database.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds a go-sql-driver DSN. Times are exchanged in UTC and
// multi-statement execution is enabled for migrations.
func ConnectionString(c database.DatabaseConfig) string {
	dsn := gomysql.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	dsn.DBName = c.Database
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.MultiStatements = true
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

// MySQLDBProvider provides gorm connections to MySQL.
type MySQLDBProvider struct {
	*gormadapter.BaseProvider
}

func NewProvider(configs map[string]database.DatabaseConfig) database.DBProvider {
	return &MySQLDBProvider{BaseProvider: gormadapter.NewBaseProvider(configs, dbType)}
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
		),
	),
)
