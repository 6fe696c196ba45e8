package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
)

// Dialect captures the SQL differences between the supported databases:
// identifier quoting, upsert syntax, generated-key retrieval and how a unique
// constraint violation is reported.
type Dialect interface {
	Name() string
	// Table returns the quoted, schema-qualified table name.
	Table(schema Schema, table string) string
	// Upsert builds an insert-or-update statement keyed by conflict that
	// overwrites update on conflict.
	Upsert(table string, columns, conflict, update []string) string
	// InsertReturningID runs an INSERT (optionally an upsert built by Upsert)
	// and returns the generated or matched key of column idColumn.
	InsertReturningID(ctx context.Context, exec database.DBExecutor, insert, idColumn string, args ...interface{}) (int64, error)
	IsUniqueViolation(err error) bool
}

// DialectFor returns the dialect for a database type.
func DialectFor(dbType string) (Dialect, error) {
	switch dbType {
	case "postgres":
		return postgresDialect{}, nil
	case "sqlite":
		return sqliteDialect{}, nil
	case "mysql":
		return mysqlDialect{}, nil
	}
	return nil, fmt.Errorf("no SQL dialect for database type %q", dbType)
}

type idRow struct {
	ID int64 `gorm:"column:id"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// onConflictUpsert is the INSERT ... ON CONFLICT form shared by PostgreSQL and SQLite.
func onConflictUpsert(table string, columns, conflict, update []string) string {
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), placeholders(len(columns)),
		strings.Join(conflict, ", "), strings.Join(sets, ", "))
}

func returningID(ctx context.Context, exec database.DBExecutor, insert, idColumn string, args ...interface{}) (int64, error) {
	var rows []idRow
	query := fmt.Sprintf("%s RETURNING %s AS id", insert, idColumn)
	if _, err := exec.QueryRaw(ctx, &rows, query, args...); err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, fmt.Errorf("expected one generated key from %s, got %d rows", idColumn, len(rows))
	}
	return rows[0].ID, nil
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Table(schema Schema, table string) string {
	return fmt.Sprintf(`"%s"."%s"`, schema.Name(), table)
}

func (postgresDialect) Upsert(table string, columns, conflict, update []string) string {
	return onConflictUpsert(table, columns, conflict, update)
}

func (postgresDialect) InsertReturningID(ctx context.Context, exec database.DBExecutor, insert, idColumn string, args ...interface{}) (int64, error) {
	return returningID(ctx, exec, insert, idColumn, args...)
}

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Table(schema Schema, table string) string {
	return fmt.Sprintf(`"%s"."%s"`, schema.Name(), table)
}

func (sqliteDialect) Upsert(table string, columns, conflict, update []string) string {
	return onConflictUpsert(table, columns, conflict, update)
}

func (sqliteDialect) InsertReturningID(ctx context.Context, exec database.DBExecutor, insert, idColumn string, args ...interface{}) (int64, error) {
	return returningID(ctx, exec, insert, idColumn, args...)
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Table(schema Schema, table string) string {
	return fmt.Sprintf("`%s`.`%s`", schema.Name(), table)
}

// Upsert uses ON DUPLICATE KEY UPDATE. MySQL has no conflict target; the
// unique key of the table decides. The key column is routed through
// LAST_INSERT_ID so that InsertReturningID also sees the id of an updated row.
func (mysqlDialect) Upsert(table string, columns, conflict, update []string) string {
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table, strings.Join(columns, ", "), placeholders(len(columns)), strings.Join(sets, ", "))
}

func (mysqlDialect) InsertReturningID(ctx context.Context, exec database.DBExecutor, insert, idColumn string, args ...interface{}) (int64, error) {
	if strings.Contains(insert, "ON DUPLICATE KEY UPDATE") {
		insert = fmt.Sprintf("%s, %s = LAST_INSERT_ID(%s)", insert, idColumn, idColumn)
	}
	if _, err := exec.ExecuteRaw(ctx, insert, args...); err != nil {
		return 0, err
	}
	var rows []idRow
	if _, err := exec.QueryRaw(ctx, &rows, "SELECT LAST_INSERT_ID() AS id"); err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, fmt.Errorf("LAST_INSERT_ID returned %d rows", len(rows))
	}
	return rows[0].ID, nil
}

func (mysqlDialect) IsUniqueViolation(err error) bool {
	var myErr *gomysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
