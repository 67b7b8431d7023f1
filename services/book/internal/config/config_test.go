package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMemoryBackendsWithDefaults(t *testing.T) {
	path := writeConfig(t, `
catalogBackend: memory
storageBackend: memory
adminTokenSecret: `+testSecret+`
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8083" || cfg.LogLevel != "info" || cfg.ReconcileWorkers != 1 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	expiry, timeout, window, grace := cfg.Durations()
	if expiry != 2*time.Hour || timeout != 10*time.Second || window != time.Minute || grace != 15*time.Second {
		t.Fatalf("unexpected durations: %s %s %s %s", expiry, timeout, window, grace)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
catalogBackend: memory
storageBackend: memory
adminTokenSecret: `+testSecret+`
reconcileConcurrency: 2
`)
	t.Setenv("STORAGE_BACKEND", "minio")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_ACCESS_KEY", "access")
	t.Setenv("MINIO_SECRET_KEY", "secret")
	t.Setenv("MINIO_BUCKET", "ebooks")
	t.Setenv("RECONCILE_CONCURRENCY", "8")
	t.Setenv("RECONCILE_STRICT_RESOLVE", "true")
	t.Setenv("BOOK_MAX_UPLOAD_BYTES", "1024")
	t.Setenv("BOOK_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageBackend != StorageMinio || cfg.MinioBucket != "ebooks" {
		t.Fatalf("storage env not applied: %+v", cfg)
	}
	if cfg.ReconcileWorkers != 8 || !cfg.StrictResolve || cfg.MaxUploadBytes != 1024 {
		t.Fatalf("reconcile env not applied: %+v", cfg)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "192.168.1.1" {
		t.Fatalf("trusted proxies = %q", cfg.TrustedProxies)
	}
}

func TestLoadUsesBookConfigEnv(t *testing.T) {
	path := writeConfig(t, "catalogBackend: memory\nstorageBackend: memory\nadminTokenSecret: "+testSecret+"\nport: \"9999\"\n")
	t.Setenv("BOOK_CONFIG", path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Fatalf("port = %q", cfg.Port)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"databaseURL":      "storageBackend: memory\nadminTokenSecret: " + testSecret + "\n",
		"minioEndpoint":    "catalogBackend: memory\nadminTokenSecret: " + testSecret + "\n",
		"s3Bucket":         "catalogBackend: memory\nstorageBackend: s3\nadminTokenSecret: " + testSecret + "\n",
		"unknown":          "catalogBackend: sqlite\nstorageBackend: memory\nadminTokenSecret: " + testSecret + "\n",
		"adminTokenSecret": "catalogBackend: memory\nstorageBackend: memory\nadminTokenSecret: short\n",
		"callTimeout":      "catalogBackend: memory\nstorageBackend: memory\nadminTokenSecret: " + testSecret + "\ncallTimeout: -1s\n",
		"uploadKeyPrefix":  "catalogBackend: memory\nstorageBackend: memory\nadminTokenSecret: " + testSecret + "\nuploadKeyPrefix: Temp/\n",
	}
	for _, key := range []string{"DATABASE_URL", "STORAGE_BACKEND", "CATALOG_BACKEND", "ADMIN_TOKEN_SECRET", "MINIO_ENDPOINT"} {
		t.Setenv(key, "")
	}
	for want, body := range cases {
		_, err := Load(writeConfig(t, body))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: expected error mentioning it, got %v", want, err)
		}
	}
}
