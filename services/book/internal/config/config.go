package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bookportal/pkg/reconcile"
)

// ConfigPath is the file read when neither the caller nor BOOK_CONFIG names one.
var ConfigPath = "config.yaml"

// Backend names accepted by catalogBackend and storageBackend.
const (
	CatalogPostgres = "postgres"
	CatalogMemory   = "memory"

	StorageMinio  = "minio"
	StorageS3     = "s3"
	StorageMemory = "memory"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	CatalogBackend string `yaml:"catalogBackend"`
	DatabaseURL    string `yaml:"databaseURL"`

	StorageBackend string `yaml:"storageBackend"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	S3Region       string `yaml:"s3Region"`
	S3Endpoint     string `yaml:"s3Endpoint"`
	S3AccessKey    string `yaml:"s3AccessKey"`
	S3SecretKey    string `yaml:"s3SecretKey"`
	S3Bucket       string `yaml:"s3Bucket"`
	S3UsePathStyle bool   `yaml:"s3UsePathStyle"`

	RedisAddr           string   `yaml:"redisAddr"`
	RedisPassword       string   `yaml:"redisPassword"`
	DownloadRateLimit   int      `yaml:"downloadRateLimit"`
	AdminRateLimit      int      `yaml:"adminRateLimit"`
	RateLimitWindow     string   `yaml:"rateLimitWindow"`
	TrustedProxies      []string `yaml:"trustedProxies"`
	AdminTokenSecret    string   `yaml:"adminTokenSecret"`
	MaxUploadBytes      int64    `yaml:"maxUploadBytes"`
	DownloadURLExpiry   string   `yaml:"downloadURLExpiry"`
	CallTimeout         string   `yaml:"callTimeout"`
	ReconcileWorkers    int      `yaml:"reconcileConcurrency"`
	StrictResolve       bool     `yaml:"strictResolve"`
	UploadKeyPrefix     string   `yaml:"uploadKeyPrefix"`
	ShutdownGracePeriod string   `yaml:"shutdownGracePeriod"`
}

// Load reads config from path (BOOK_CONFIG, then ConfigPath, when empty),
// applies environment overrides and fills defaults.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = strings.TrimSpace(os.Getenv("BOOK_CONFIG"))
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.CatalogBackend, "CATALOG_BACKEND")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.StorageBackend, "STORAGE_BACKEND")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	setString(&cfg.S3Region, "S3_REGION")
	setString(&cfg.S3Endpoint, "S3_ENDPOINT")
	setString(&cfg.S3AccessKey, "S3_ACCESS_KEY")
	setString(&cfg.S3SecretKey, "S3_SECRET_KEY")
	setString(&cfg.S3Bucket, "S3_BUCKET")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.AdminTokenSecret, "ADMIN_TOKEN_SECRET")
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("S3_USE_PATH_STYLE"); v == "true" {
		cfg.S3UsePathStyle = true
	}
	if v := os.Getenv("BOOK_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("RECONCILE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReconcileWorkers = n
		}
	}
	if v := os.Getenv("RECONCILE_STRICT_RESOLVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.StrictResolve = b
		}
	}
	if v := os.Getenv("BOOK_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8083"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.CatalogBackend == "" {
		cfg.CatalogBackend = CatalogPostgres
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = StorageMinio
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 * 1024 * 1024
	}
	if cfg.ReconcileWorkers <= 0 {
		cfg.ReconcileWorkers = 1
	}
	if cfg.DownloadURLExpiry == "" {
		cfg.DownloadURLExpiry = "2h"
	}
	if cfg.CallTimeout == "" {
		cfg.CallTimeout = "10s"
	}
	if cfg.RateLimitWindow == "" {
		cfg.RateLimitWindow = "1m"
	}
	if cfg.DownloadRateLimit <= 0 {
		cfg.DownloadRateLimit = 60
	}
	if cfg.AdminRateLimit <= 0 {
		cfg.AdminRateLimit = 10
	}
	if cfg.ShutdownGracePeriod == "" {
		cfg.ShutdownGracePeriod = "15s"
	}
}

func validateConfig(cfg FileConfig) error {
	switch cfg.CatalogBackend {
	case CatalogPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres catalog (set in config.yaml or DATABASE_URL)")
		}
	case CatalogMemory:
	default:
		return fmt.Errorf("config: unknown catalogBackend %q", cfg.CatalogBackend)
	}
	switch cfg.StorageBackend {
	case StorageMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint, minioAccessKey, minioSecretKey and minioBucket are required for the minio backend")
		}
	case StorageS3:
		if cfg.S3Bucket == "" || cfg.S3Region == "" {
			return errors.New("config: s3Bucket and s3Region are required for the s3 backend")
		}
		if (cfg.S3AccessKey == "") != (cfg.S3SecretKey == "") {
			return errors.New("config: s3AccessKey and s3SecretKey must be set together")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("config: unknown storageBackend %q", cfg.StorageBackend)
	}
	if len(strings.TrimSpace(cfg.AdminTokenSecret)) < 32 {
		return errors.New("config: adminTokenSecret must be at least 32 bytes (set in config.yaml or ADMIN_TOKEN_SECRET)")
	}
	if err := reconcile.CheckKeyPrefix(cfg.UploadKeyPrefix); err != nil {
		return fmt.Errorf("config: uploadKeyPrefix: %w", err)
	}
	for name, raw := range map[string]string{
		"downloadURLExpiry":   cfg.DownloadURLExpiry,
		"callTimeout":         cfg.CallTimeout,
		"rateLimitWindow":     cfg.RateLimitWindow,
		"shutdownGracePeriod": cfg.ShutdownGracePeriod,
	} {
		if _, err := ParseDuration(raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// ParseDuration parses a positive Go duration string.
func ParseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", raw)
	}
	return d, nil
}

// Durations returns the parsed duration settings. Load has already validated them.
func (c FileConfig) Durations() (downloadExpiry, callTimeout, rateWindow, shutdownGrace time.Duration) {
	downloadExpiry, _ = ParseDuration(c.DownloadURLExpiry)
	callTimeout, _ = ParseDuration(c.CallTimeout)
	rateWindow, _ = ParseDuration(c.RateLimitWindow)
	shutdownGrace, _ = ParseDuration(c.ShutdownGracePeriod)
	return
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
