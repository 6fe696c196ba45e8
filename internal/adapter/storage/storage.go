// Package storage abstracts the object stores export files are written to.
package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// StorageConfig selects and configures one object store.
type StorageConfig struct {
	// Type is "local" or "gcs".
	Type            string `yaml:"type" env:"WEATHER_EXPORT_STORAGE_TYPE" validate:"omitempty,oneof=local gcs"`
	BucketName      string `yaml:"bucket_name" env:"WEATHER_EXPORT_BUCKET"`
	CredentialsFile string `yaml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	BaseDir         string `yaml:"base_dir" env:"WEATHER_EXPORT_BASE_DIR"`
}

// StorageConnection writes, lists and deletes objects. An empty bucket
// argument means the configured default bucket.
type StorageConnection interface {
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	DeleteObject(ctx context.Context, bucket, objectName string) error

	Type() string
	Close() error
}

// Factory opens a connection for a configuration of its type.
type Factory func(ctx context.Context, cfg StorageConfig) (StorageConnection, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory is called from the init functions of the adapter packages.
func RegisterFactory(storageType string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[storageType] = f
}

// Open returns a connection for cfg.Type.
func Open(ctx context.Context, cfg StorageConfig) (StorageConnection, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no storage adapter registered for type '%s'", cfg.Type)
	}
	return f(ctx, cfg)
}
