// Package database defines the connection, executor and transaction
// abstractions the warehouse writes through. Implementations live in the gorm
// subpackage; callers only depend on these interfaces.
package database

import (
	"context"
	"database/sql"
)

// DBExecutor runs raw SQL. Both connections and transactions implement it so
// that warehouse code is agnostic to whether it runs inside a transaction.
type DBExecutor interface {
	// ExecuteRaw runs a statement that returns no rows.
	ExecuteRaw(ctx context.Context, query string, args ...interface{}) (rowsAffected int64, err error)
	// QueryRaw scans the result of query into target (a pointer to a scalar,
	// struct or slice) and returns the number of rows read.
	QueryRaw(ctx context.Context, target interface{}, query string, args ...interface{}) (rowsRead int64, err error)
}

// DBConnection is a named, pooled connection to the warehouse.
type DBConnection interface {
	DBExecutor

	Name() string
	Type() string
	Close() error
	Config() DatabaseConfig
	GetSQLDB() (*sql.DB, error)
	IsTableNotExistError(err error) bool
}

// DBProvider opens and caches connections for one database type.
type DBProvider interface {
	GetConnection(name string) (DBConnection, error)
	CloseAll() error
	Type() string
}

// DBConnectionResolver returns the connection registered under name.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// Tx is a unit of work. Savepoints allow recovering from an expected
// statement failure without aborting the enclosing transaction.
type Tx interface {
	DBExecutor

	Savepoint(name string) error
	RollbackToSavepoint(name string) error
}

// TransactionManager begins and finishes transactions on one connection.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}

// DBProviderGroup is the fx value group providers are collected into.
const DBProviderGroup = "db_providers"

// WarehouseConnection is the name of the single warehouse connection.
const WarehouseConnection = "warehouse"
