package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
)

// Module provides the warehouse connection and its transaction manager.
// Driver subpackage modules must be included alongside it.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			database.NewConnectionResolver,
			fx.As(new(database.DBConnectionResolver)),
		),
		NewWarehouseConnection,
		fx.Annotate(
			NewTransactionManager,
			fx.As(new(database.TransactionManager)),
		),
	),
)

// NewWarehouseConnection resolves the warehouse connection and closes it when
// the application stops.
func NewWarehouseConnection(lc fx.Lifecycle, resolver database.DBConnectionResolver) (database.DBConnection, error) {
	conn, err := resolver.ResolveDBConnection(context.Background(), database.WarehouseConnection)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return conn.Close()
		},
	})
	return conn, nil
}
