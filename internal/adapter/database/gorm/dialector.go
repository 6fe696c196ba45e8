package gorm

import (
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// DialectorFactory builds a gorm dialector for one database type.
type DialectorFactory func(cfg database.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorMu       sync.RWMutex
	dialectorRegistry = make(map[string]DialectorFactory)
)

// RegisterDialector is called from the init functions of the driver subpackages.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMu.Lock()
	defer dialectorMu.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory returns the factory registered for dbType.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMu.RLock()
	defer dialectorMu.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s (is its driver package imported?)", dbType)
	}
	return factory, nil
}
