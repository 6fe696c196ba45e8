// Package migration applies the warehouse DDL for one schema with
// golang-migrate. Each schema tracks its own version table so several
// cities can share one database.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	mdatabase "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
	"github.com/tigerroll/weatherdw/internal/warehouse"
)

const module = "migration"

// Migrator handles warehouse schema migrations.
type Migrator interface {
	// Up applies all pending migrations for schema.
	Up(ctx context.Context, schema warehouse.Schema) error
	// Down rolls back every applied migration for schema.
	Down(ctx context.Context, schema warehouse.Schema) error
	// Version reports the applied version for schema; zero means none.
	Version(ctx context.Context, schema warehouse.Schema) (uint, bool, error)
}

// MigrationsTable names the version table for schema.
func MigrationsTable(schema warehouse.Schema) string {
	return "weatherdw_" + schema.Name() + "_migrations"
}

type migratorImpl struct {
	conn database.DBConnection
}

// NewMigrator creates a Migrator for the warehouse connection.
func NewMigrator(conn database.DBConnection) Migrator {
	return &migratorImpl{conn: conn}
}

// session is one migrate instance plus whatever must be released afterwards.
type session struct {
	m       *migrate.Migrate
	release func() error
}

func (m *migratorImpl) open(ctx context.Context, schema warehouse.Schema) (*session, error) {
	dbType := m.conn.Type()
	ddl, err := warehouse.MigrationsFor(dbType)
	if err != nil {
		return nil, exception.New(module, exception.KindConfig, "unsupported database type for migration", err)
	}
	src, err := iofs.New(Expand(ddl, map[string]string{warehouse.SchemaPlaceholder: schema.Name()}), ".")
	if err != nil {
		return nil, exception.New(module, exception.KindInternal, "failed to create iofs source driver", err)
	}

	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		src.Close()
		return nil, exception.New(module, exception.KindInternal, "failed to get underlying sql.DB", err)
	}

	drv, conn, err := m.databaseDriver(ctx, sqlDB, MigrationsTable(schema))
	if err != nil {
		src.Close()
		return nil, exception.New(module, exception.KindWrite, "failed to create database driver", err)
	}

	mi, err := migrate.NewWithInstance("iofs", src, dbType, drv)
	if err != nil {
		src.Close()
		if conn != nil {
			conn.Close()
		}
		return nil, exception.New(module, exception.KindInternal, "failed to create migrate instance", err)
	}
	mi.Log = migrateLogger{}

	return &session{m: mi, release: closer(mi, src, conn)}, nil
}

// databaseDriver builds the migrate driver. Server databases run on a
// dedicated *sql.Conn so closing the driver leaves the pool intact. SQLite
// drivers wrap the pool itself, which must therefore never be closed here.
func (m *migratorImpl) databaseDriver(ctx context.Context, sqlDB *sql.DB, table string) (mdatabase.Driver, *sql.Conn, error) {
	switch m.conn.Type() {
	case "postgres":
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		drv, err := postgres.WithConnection(ctx, conn, &postgres.Config{MigrationsTable: table})
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return drv, conn, nil
	case "mysql":
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		drv, err := mysql.WithConnection(ctx, conn, &mysql.Config{MigrationsTable: table})
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return drv, conn, nil
	case "sqlite":
		drv, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: table})
		return drv, nil, err
	default:
		return nil, nil, fmt.Errorf("unsupported database type for migration: %s", m.conn.Type())
	}
}

func closer(mi *migrate.Migrate, src source.Driver, conn *sql.Conn) func() error {
	if conn != nil {
		return func() error {
			srcErr, dbErr := mi.Close()
			return errors.Join(srcErr, dbErr)
		}
	}
	return src.Close
}

func (m *migratorImpl) run(ctx context.Context, schema warehouse.Schema, command string) error {
	table := MigrationsTable(schema)
	logger.Infof("Executing migration '%s' (schema: %s, table: %s, db: %s)", command, schema, table, m.conn.Type())

	s, err := m.open(ctx, schema)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.release(); err != nil {
			logger.Warnf("Failed to release migration resources: %v", err)
		}
	}()

	var migrateErr error
	switch command {
	case "up":
		migrateErr = s.m.Up()
	case "down":
		migrateErr = s.m.Down()
	default:
		return exception.Newf(module, exception.KindInternal, "unsupported migration command: %s", command)
	}

	if migrateErr != nil && !errors.Is(migrateErr, migrate.ErrNoChange) {
		if v, dirty, verr := s.m.Version(); verr == nil {
			logger.Errorf("Migration '%s' failed at version %d (dirty=%t).", command, v, dirty)
		}
		return exception.New(module, exception.KindWrite,
			fmt.Sprintf("migration '%s' failed for schema %s", command, schema), migrateErr)
	}
	if errors.Is(migrateErr, migrate.ErrNoChange) {
		logger.Infof("Schema %s is up to date.", schema)
		return nil
	}
	logger.Infof("Migration '%s' completed for schema %s.", command, schema)
	return nil
}

func (m *migratorImpl) Up(ctx context.Context, schema warehouse.Schema) error {
	return m.run(ctx, schema, "up")
}

func (m *migratorImpl) Down(ctx context.Context, schema warehouse.Schema) error {
	return m.run(ctx, schema, "down")
}

func (m *migratorImpl) Version(ctx context.Context, schema warehouse.Schema) (uint, bool, error) {
	s, err := m.open(ctx, schema)
	if err != nil {
		return 0, false, err
	}
	defer s.release()

	v, dirty, err := s.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// migrateLogger forwards golang-migrate's verbose output to the debug log.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logger.Debugf("migrate: "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return logger.Level() == logger.LevelDebug
}
