package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	gormadapter "github.com/tigerroll/weatherdw/internal/adapter/database/gorm"
	_ "github.com/tigerroll/weatherdw/internal/adapter/database/gorm/sqlite"
	"github.com/tigerroll/weatherdw/internal/migration"
	"github.com/tigerroll/weatherdw/internal/warehouse"
)

// TestSchemas are the schemas accepted by test warehouses.
var TestSchemas = []string{"nyc", "pittsburgh", "weather"}

// Warehouse bundles an in-memory SQLite warehouse with the schema migrated.
type Warehouse struct {
	Conn      database.DBConnection
	TxManager database.TransactionManager
	Schema    warehouse.Schema
	Dialect   warehouse.Dialect
	Engine    *warehouse.Engine
	Replacer  *warehouse.ForecastReplacer
	Reader    *warehouse.Reader
}

// NewWarehouse opens a private in-memory SQLite database, attaches schema and
// applies the migrations. The database is closed when the test ends.
func NewWarehouse(t *testing.T, schema string) *Warehouse {
	t.Helper()

	cfg := database.DatabaseConfig{
		Type:     "sqlite",
		Database: ":memory:",
		Schema:   schema,
	}
	db, err := gormadapter.Open(cfg)
	require.NoError(t, err)
	conn := gormadapter.NewGormDBAdapter(db, cfg, database.WarehouseConnection)
	t.Cleanup(func() { _ = conn.Close() })

	s, err := warehouse.ParseSchema(schema, TestSchemas)
	require.NoError(t, err)
	require.NoError(t, migration.NewMigrator(conn).Up(context.Background(), s))

	tm, err := gormadapter.NewTransactionManager(conn)
	require.NoError(t, err)
	dialect, err := warehouse.DialectFor(cfg.Type)
	require.NoError(t, err)

	return &Warehouse{
		Conn:      conn,
		TxManager: tm,
		Schema:    s,
		Dialect:   dialect,
		Engine:    warehouse.NewEngine(s, dialect, time.UTC),
		Replacer:  warehouse.NewForecastReplacer(tm, dialect),
		Reader:    warehouse.NewReader(conn, s, dialect),
	}
}

// Count returns the number of rows in table.
func (w *Warehouse) Count(t *testing.T, table string) int64 {
	t.Helper()
	var n []struct {
		N int64 `gorm:"column:n"`
	}
	_, err := w.Conn.QueryRaw(context.Background(), &n, "SELECT COUNT(*) AS n FROM "+w.Dialect.Table(w.Schema, table))
	require.NoError(t, err)
	require.Len(t, n, 1)
	return n[0].N
}

// InTx runs fn in a transaction and commits it, failing the test on error.
func (w *Warehouse) InTx(t *testing.T, fn func(tx database.Tx) error) {
	t.Helper()
	tx, err := w.TxManager.Begin(context.Background())
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		_ = w.TxManager.Rollback(tx)
		require.NoError(t, err)
	}
	require.NoError(t, w.TxManager.Commit(tx))
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
