// Package sqlite registers the SQLite dialector. Every pooled connection gets
// the configured schemas attached so that schema-qualified SQL written for
// the server databases runs unchanged.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	gormadapter "github.com/tigerroll/weatherdw/internal/adapter/database/gorm"
)

const dbType = "sqlite"

func init() {
	gormadapter.RegisterDialector(dbType, func(cfg database.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		driverName, err := registerDriver(cfg.Database, schemasOf(cfg))
		if err != nil {
			return nil, err
		}
		return &sqlite.Dialector{DriverName: driverName, DSN: cfg.Database}, nil
	})
}

var (
	driversMu sync.Mutex
	drivers   = make(map[string]string)
)

// registerDriver registers (once per distinct attach set) a mattn driver whose
// connect hook attaches every schema.
func registerDriver(dsn string, schemas []string) (string, error) {
	key := dsn + "|" + strings.Join(schemas, ",")
	driversMu.Lock()
	defer driversMu.Unlock()
	if name, ok := drivers[key]; ok {
		return name, nil
	}

	attachments := make(map[string]string, len(schemas))
	for _, schema := range schemas {
		if !isIdentifier(schema) {
			return "", fmt.Errorf("sqlite: invalid schema name %q", schema)
		}
		attachments[schema] = AttachPath(dsn, schema)
	}

	name := fmt.Sprintf("sqlite3_weatherdw_%d", len(drivers))
	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			for _, schema := range schemas {
				stmt := fmt.Sprintf("ATTACH DATABASE '%s' AS %s", strings.ReplaceAll(attachments[schema], "'", "''"), schema)
				if _, err := conn.Exec(stmt, nil); err != nil {
					return fmt.Errorf("attach schema %s: %w", schema, err)
				}
			}
			return nil
		},
	})
	drivers[key] = name
	return name, nil
}

// AttachPath returns the database file backing schema. In-memory databases
// attach in-memory schemas; file databases use a sibling file per schema.
func AttachPath(dsn, schema string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ":memory:"
	}
	path := strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:")
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + schema + ext
}

func schemasOf(cfg database.DatabaseConfig) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append([]string{cfg.Schema}, cfg.Attach...) {
		if s == "" || s == "main" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// SQLiteDBProvider provides gorm connections to SQLite.
type SQLiteDBProvider struct {
	*gormadapter.BaseProvider
}

func NewProvider(configs map[string]database.DatabaseConfig) database.DBProvider {
	return &SQLiteDBProvider{BaseProvider: gormadapter.NewBaseProvider(configs, dbType)}
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
		),
	),
)
