package app

import (
	"context"
	"fmt"

	"bookportal/pkg/storage"
	"bookportal/pkg/store"
)

func openCatalog(cfg Config) (store.Catalog, error) {
	switch cfg.CatalogBackend {
	case "", "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		catalog, err := store.NewGormCatalog(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres catalog: %w", err)
		}
		return catalog, nil
	case "memory":
		return store.NewMemoryCatalog(), nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.CatalogBackend)
	}
}

func openObjects(ctx context.Context, cfg Config) (storage.BlobStore, error) {
	switch cfg.StorageBackend {
	case "", "minio":
		objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init minio store: %w", err)
		}
		return objects, nil
	case "s3":
		objects, err := storage.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("init s3 store: %w", err)
		}
		return objects, nil
	case "memory":
		return storage.NewMemoryStore(cfg.MinioBucket), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
