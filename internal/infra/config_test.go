package infra

import (
	"context"
	"testing"
	"time"

	"mediagen/internal/storage"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("JOB_TIMEOUT", "")
	t.Setenv("FALLBACK_ENABLED", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBackend != StorageLocal {
		t.Fatalf("StorageBackend mismatch: got %q", cfg.StorageBackend)
	}
	if cfg.StorageBaseURL != "http://localhost:8080/v1/artifacts" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if cfg.PollInterval != 5*time.Second || cfg.JobTimeout != 600*time.Second {
		t.Fatalf("poll defaults mismatch: %v %v", cfg.PollInterval, cfg.JobTimeout)
	}
	if !cfg.FallbackEnabled || cfg.MaxPollAttempts != 5 || cfg.ProgressCap != 90 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("CORSAllowedOrigins mismatch: %#v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/v1/artifacts"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigParsesOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("JOB_TIMEOUT", "120")
	t.Setenv("FALLBACK_ENABLED", "false")
	t.Setenv("POLL_QPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("MAX_CONCURRENT_JOBS", "3")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.JobTimeout != 120*time.Second {
		t.Fatalf("JobTimeout = %v", cfg.JobTimeout)
	}
	if cfg.FallbackEnabled {
		t.Fatalf("FallbackEnabled should be false")
	}
	if cfg.PollQPS != 2.5 || cfg.MaxConcurrentJobs != 3 {
		t.Fatalf("unexpected numeric overrides %+v", cfg)
	}
	expected := []string{"https://a.example", "https://b.example"}
	if len(cfg.CORSAllowedOrigins) != len(expected) {
		t.Fatalf("CORSAllowedOrigins mismatch: got %#v want %#v", cfg.CORSAllowedOrigins, expected)
	}
	for i, origin := range expected {
		if cfg.CORSAllowedOrigins[i] != origin {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], origin)
		}
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown backend", "STORAGE_BACKEND", "gcs"},
		{"s3 without bucket", "STORAGE_BACKEND", "s3"},
		{"zero concurrency", "MAX_CONCURRENT_JOBS", "0"},
		{"cap above 99", "PROGRESS_CAP", "100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("S3_BUCKET", "")
			t.Setenv(tc.key, tc.val)
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestNewArtifactStoreLocal(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{StorageBackend: StorageLocal, StoragePath: dir}
	store, err := NewArtifactStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	fs, ok := store.(*storage.FileStore)
	if !ok {
		t.Fatalf("expected *storage.FileStore, got %T", store)
	}
	if fs.BasePath() != dir {
		t.Fatalf("base path = %q, want %q", fs.BasePath(), dir)
	}
}
