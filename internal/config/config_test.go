package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8000" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Fatalf("expected 7 day session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.PresignTTL != time.Hour {
		t.Fatalf("expected 1h presign ttl, got %s", cfg.PresignTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("expected :9999, got %q", cfg.Addr)
	}
	if !cfg.S3UseSSL {
		t.Fatal("expected S3UseSSL to be true")
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production environment")
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error for malformed duration")
	}
}
