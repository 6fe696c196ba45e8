package gorm

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// BaseProvider opens gorm connections for one database type and caches them by name.
type BaseProvider struct {
	configs map[string]database.DatabaseConfig
	dbType  string

	mu          sync.RWMutex
	connections map[string]*GormDBAdapter
}

// NewBaseProvider is embedded by the driver-specific providers.
func NewBaseProvider(configs map[string]database.DatabaseConfig, dbType string) *BaseProvider {
	return &BaseProvider{
		configs:     configs,
		dbType:      dbType,
		connections: make(map[string]*GormDBAdapter),
	}
}

func (p *BaseProvider) Type() string {
	return p.dbType
}

// GetConnection returns the cached connection for name, opening it on first use.
func (p *BaseProvider) GetConnection(name string) (database.DBConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}

	cfg, ok := p.configs[name]
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' not found", name)
	}
	if cfg.Type != p.dbType {
		return nil, fmt.Errorf("provider type mismatch: expected '%s', got '%s' for connection '%s'", p.dbType, cfg.Type, name)
	}

	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	adapter := NewGormDBAdapter(db, cfg, name)
	p.connections[name] = adapter
	logger.Infof("Established DB connection '%s' (%s, schema %s).", name, p.dbType, cfg.Schema)
	return adapter, nil
}

// CloseAll closes every cached connection.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			result = multierror.Append(result, fmt.Errorf("close %s: %w", name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

// Open builds the dialector registered for cfg.Type and applies pool settings.
func Open(cfg database.DatabaseConfig) (*gorm.DB, error) {
	factory, err := GetDialectorFactory(cfg.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", cfg.Type, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 NewGormLogger(cfg.SQLLogLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	switch {
	case cfg.Pool.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	case cfg.Type == "sqlite":
		// SQLite allows one writer; in-memory databases exist per connection.
		sqlDB.SetMaxOpenConns(1)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}
	if lifetime := cfg.Pool.ConnMaxLifetime(); lifetime > 0 {
		sqlDB.SetConnMaxLifetime(lifetime)
	}
	return db, nil
}
