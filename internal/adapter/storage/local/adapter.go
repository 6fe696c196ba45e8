// Package local stores objects as files below a base directory. Buckets map
// to subdirectories.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tigerroll/weatherdw/internal/adapter/storage"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

const ProviderType = "local"

func init() {
	storage.RegisterFactory(ProviderType, func(_ context.Context, cfg storage.StorageConfig) (storage.StorageConnection, error) {
		return NewLocalAdapter(cfg)
	})
}

type localAdapter struct {
	cfg     storage.StorageConfig
	baseDir string
}

// NewLocalAdapter creates the base directory if needed.
func NewLocalAdapter(cfg storage.StorageConfig) (storage.StorageConnection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage: base_dir must be configured")
	}
	abs, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("local storage: resolve base_dir '%s': %w", cfg.BaseDir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: create base_dir '%s': %w", abs, err)
	}
	return &localAdapter{cfg: cfg, baseDir: abs}, nil
}

func (a *localAdapter) Type() string { return ProviderType }

func (a *localAdapter) Close() error { return nil }

func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create directory for '%s': %w", fullPath, err)
	}

	// Write to a temporary file first so readers never observe a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file for '%s': %w", fullPath, err)
	}
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write '%s': %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close '%s': %w", fullPath, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename into '%s': %w", fullPath, err)
	}
	logger.Debugf("Stored %s (%s).", fullPath, contentType)
	return nil
}

func (a *localAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	root, err := a.resolvePath(bucket, "")
	if err != nil {
		return err
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		return fn(name)
	})
	if err != nil {
		return fmt.Errorf("list '%s' with prefix '%s': %w", root, prefix, err)
	}
	return nil
}

func (a *localAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete '%s': %w", fullPath, err)
	}
	return nil
}

// resolvePath joins base dir, bucket and object name and refuses paths that
// escape the base directory.
func (a *localAdapter) resolvePath(bucket, objectName string) (string, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	fullPath := filepath.Join(a.baseDir, bucket, filepath.FromSlash(objectName))
	if fullPath != a.baseDir && !strings.HasPrefix(fullPath, a.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("object path '%s' is outside of base_dir '%s'", objectName, a.baseDir)
	}
	return fullPath, nil
}
