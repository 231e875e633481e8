package infra

import (
	"context"
	"fmt"
	"path/filepath"

	"mediagen/internal/storage"
)

// NewArtifactStore builds the store selected by STORAGE_BACKEND.
func NewArtifactStore(ctx context.Context, cfg *Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case StorageS3:
		client, err := storage.NewS3Client(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewS3Store(client, cfg.S3Bucket)
	default:
		path := cfg.StoragePath
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		store, err := storage.NewFileStore(path)
		if err != nil {
			return nil, fmt.Errorf("configure file store: %w", err)
		}
		return store, nil
	}
}
