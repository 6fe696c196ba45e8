// Package gcs stores objects in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tigerroll/weatherdw/internal/adapter/storage"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

const ProviderType = "gcs"

func init() {
	storage.RegisterFactory(ProviderType, NewGCSAdapter)
}

type gcsAdapter struct {
	client *gcstorage.Client
	bucket string
}

// NewGCSAdapter creates a client using the credentials file when configured,
// otherwise application default credentials.
func NewGCSAdapter(ctx context.Context, cfg storage.StorageConfig) (storage.StorageConnection, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}
	return &gcsAdapter{client: client, bucket: cfg.BucketName}, nil
}

func (a *gcsAdapter) Type() string { return ProviderType }

func (a *gcsAdapter) Close() error { return a.client.Close() }

func (a *gcsAdapter) bucketName(bucket string) (string, error) {
	if bucket != "" {
		return bucket, nil
	}
	if a.bucket == "" {
		return "", errors.New("gcs: no bucket given and bucket_name is not configured")
	}
	return a.bucket, nil
}

func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	name, err := a.bucketName(bucket)
	if err != nil {
		return err
	}
	w := a.client.Bucket(name).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("gcs: write gs://%s/%s: %w", name, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: finalize gs://%s/%s: %w", name, objectName, err)
	}
	logger.Debugf("Uploaded gs://%s/%s.", name, objectName)
	return nil
}

func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	name, err := a.bucketName(bucket)
	if err != nil {
		return err
	}
	it := a.client.Bucket(name).Objects(ctx, &gcstorage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gcs: list gs://%s/%s: %w", name, prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	name, err := a.bucketName(bucket)
	if err != nil {
		return err
	}
	err = a.client.Bucket(name).Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: delete gs://%s/%s: %w", name, objectName, err)
	}
	return nil
}
