package warehouse

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed migrations
var migrationFiles embed.FS

// SchemaPlaceholder is substituted with the schema name when migrations run.
const SchemaPlaceholder = "WEATHER_SCHEMA"

// MigrationsFor returns the DDL for a database type, rooted at its directory.
func MigrationsFor(dbType string) (fs.FS, error) {
	sub, err := fs.Sub(migrationFiles, "migrations/"+dbType)
	if err != nil {
		return nil, err
	}
	if _, err := fs.Stat(sub, "."); err != nil {
		return nil, fmt.Errorf("no migrations for database type %q", dbType)
	}
	return sub, nil
}
