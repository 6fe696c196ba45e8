// Package gorm implements the database interfaces on top of gorm.io/gorm.
package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// GormDBAdapter implements database.DBConnection.
type GormDBAdapter struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	cfg    database.DatabaseConfig
	name   string
	dbType string
}

var _ database.DBConnection = (*GormDBAdapter)(nil)

// NewGormDBAdapter wraps an opened gorm handle.
func NewGormDBAdapter(db *gorm.DB, cfg database.DatabaseConfig, name string) *GormDBAdapter {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Errorf("Failed to obtain *sql.DB for connection '%s': %v", name, err)
	}
	return &GormDBAdapter{db: db, sqlDB: sqlDB, cfg: cfg, name: name, dbType: cfg.Type}
}

// GetGormDB exposes the gorm handle to the rest of this package.
func (a *GormDBAdapter) GetGormDB() *gorm.DB {
	return a.db
}

func (a *GormDBAdapter) Name() string { return a.name }

func (a *GormDBAdapter) Type() string { return a.dbType }

func (a *GormDBAdapter) Config() database.DatabaseConfig { return a.cfg }

func (a *GormDBAdapter) Close() error {
	if a.sqlDB == nil {
		return nil
	}
	logger.Debugf("Closing DB connection '%s'.", a.name)
	return a.sqlDB.Close()
}

func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	if a.sqlDB == nil {
		return nil, fmt.Errorf("connection '%s' has no underlying *sql.DB", a.name)
	}
	return a.sqlDB, nil
}

func (a *GormDBAdapter) ExecuteRaw(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return execRaw(a.db.WithContext(ctx), query, args...)
}

func (a *GormDBAdapter) QueryRaw(ctx context.Context, target interface{}, query string, args ...interface{}) (int64, error) {
	return queryRaw(a.db.WithContext(ctx), target, query, args...)
}

func (a *GormDBAdapter) IsTableNotExistError(err error) bool {
	return IsTableNotExistError(err)
}

func execRaw(db *gorm.DB, query string, args ...interface{}) (int64, error) {
	result := db.Exec(query, args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func queryRaw(db *gorm.DB, target interface{}, query string, args ...interface{}) (int64, error) {
	result := db.Raw(query, args...).Scan(target)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// IsTableNotExistError recognises missing-table errors from the supported drivers.
func IsTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return (strings.Contains(msg, "relation \"") && strings.Contains(msg, "does not exist")) || // postgres
		strings.Contains(msg, "Error 1146") || // mysql
		strings.Contains(msg, "no such table") // sqlite
}
