package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected env dev, got %q", cfg.Env)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("expected max attempts 3, got %d", cfg.MaxAttempts)
	}
	if cfg.QuotaPolicy != "defer" {
		t.Fatalf("expected quota policy defer, got %q", cfg.QuotaPolicy)
	}
	if cfg.RetryBaseDelay != 2*time.Second {
		t.Fatalf("expected retry base 2s, got %s", cfg.RetryBaseDelay)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "prod")
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("QUOTA_POLICY", "REJECT")
	t.Setenv("WORKER_CONCURRENCY", "9")
	t.Setenv("JOB_RETRY_BASE_DELAY", "750ms")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example ,")

	cfg := Load()

	if cfg.Env != "production" {
		t.Fatalf("expected env production, got %q", cfg.Env)
	}
	if cfg.QuotaPolicy != "reject" {
		t.Fatalf("expected quota policy reject, got %q", cfg.QuotaPolicy)
	}
	if cfg.WorkerConcurrency != 9 {
		t.Fatalf("expected concurrency 9, got %d", cfg.WorkerConcurrency)
	}
	if cfg.RetryBaseDelay != 750*time.Millisecond {
		t.Fatalf("expected retry base 750ms, got %s", cfg.RetryBaseDelay)
	}
	if len(cfg.CORSAllowOrigin) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.CORSAllowOrigin)
	}
}
