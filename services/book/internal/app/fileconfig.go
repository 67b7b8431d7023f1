package app

import (
	"log/slog"

	"bookportal/pkg/storage"
	"bookportal/services/book/internal/config"
)

// ConfigFromFile maps the loaded service configuration onto Config.
func ConfigFromFile(fc config.FileConfig, logger *slog.Logger) Config {
	downloadExpiry, callTimeout, _, _ := fc.Durations()
	return Config{
		Logger:         logger,
		CatalogBackend: fc.CatalogBackend,
		DatabaseURL:    fc.DatabaseURL,
		StorageBackend: fc.StorageBackend,
		MinioEndpoint:  fc.MinioEndpoint,
		MinioAccessKey: fc.MinioAccessKey,
		MinioSecretKey: fc.MinioSecretKey,
		MinioBucket:    fc.MinioBucket,
		MinioUseSSL:    fc.MinioUseSSL,
		S3: storage.S3Options{
			Region:       fc.S3Region,
			Endpoint:     fc.S3Endpoint,
			AccessKey:    fc.S3AccessKey,
			SecretKey:    fc.S3SecretKey,
			Bucket:       fc.S3Bucket,
			UsePathStyle: fc.S3UsePathStyle,
		},
		MaxUploadBytes: fc.MaxUploadBytes,
		DownloadExpiry: downloadExpiry,
		CallTimeout:    callTimeout,
		Concurrency:    fc.ReconcileWorkers,
		StrictResolve:  fc.StrictResolve,
		KeyPrefix:      fc.UploadKeyPrefix,
	}
}
