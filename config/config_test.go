package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "DB_DSN", "SHEET_BASE_URL", "SHEET_TOKEN", "SHEET_TIMEOUT",
		"CHECK_INTERVAL", "CHECK_TIMEOUT", "CHECK_CONCURRENCY",
		"BACKEND_MAX_TRIES", "LOCK_TTL", "LOCK_SWEEP_INTERVAL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.DBDsn == "" {
		t.Error("DBDsn default missing")
	}
	if cfg.SheetBaseURL != "" {
		t.Errorf("SheetBaseURL = %q, want empty", cfg.SheetBaseURL)
	}
	if cfg.CheckInterval != time.Minute {
		t.Errorf("CheckInterval = %v, want 1m", cfg.CheckInterval)
	}
	if cfg.CheckTimeout != 10*time.Second {
		t.Errorf("CheckTimeout = %v, want 10s", cfg.CheckTimeout)
	}
	if cfg.CheckConcurrency != 4 {
		t.Errorf("CheckConcurrency = %d, want 4", cfg.CheckConcurrency)
	}
	if cfg.BackendMaxTries != 1 {
		t.Errorf("BackendMaxTries = %d, want 1", cfg.BackendMaxTries)
	}
	if cfg.LockTTL != 30*time.Second {
		t.Errorf("LockTTL = %v, want 30s", cfg.LockTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SHEET_BASE_URL", "http://bridge:7000")
	t.Setenv("SHEET_TOKEN", "tok")
	t.Setenv("CHECK_INTERVAL", "5m")
	t.Setenv("CHECK_CONCURRENCY", "16")
	t.Setenv("BACKEND_MAX_TRIES", "3")
	t.Setenv("LOCK_TTL", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.SheetBaseURL != "http://bridge:7000" || cfg.SheetToken != "tok" {
		t.Errorf("sheet config = %q, %q", cfg.SheetBaseURL, cfg.SheetToken)
	}
	if cfg.CheckInterval != 5*time.Minute {
		t.Errorf("CheckInterval = %v, want 5m", cfg.CheckInterval)
	}
	if cfg.CheckConcurrency != 16 {
		t.Errorf("CheckConcurrency = %d, want 16", cfg.CheckConcurrency)
	}
	if cfg.BackendMaxTries != 3 {
		t.Errorf("BackendMaxTries = %d, want 3", cfg.BackendMaxTries)
	}
	if cfg.LockTTL != 2*time.Minute {
		t.Errorf("LockTTL = %v, want 2m", cfg.LockTTL)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CHECK_INTERVAL", "soon")
	t.Setenv("CHECK_CONCURRENCY", "-2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CheckInterval != time.Minute {
		t.Errorf("CheckInterval = %v, want default on parse failure", cfg.CheckInterval)
	}
	if cfg.CheckConcurrency != 4 {
		t.Errorf("CheckConcurrency = %d, want default on non-positive value", cfg.CheckConcurrency)
	}
}

func TestValidateSyncReady(t *testing.T) {
	cfg := &Config{DBDsn: "postgres://x"}
	if err := cfg.ValidateSyncReady(); err != nil {
		t.Errorf("db-only config should be valid: %v", err)
	}
	cfg = &Config{SheetBaseURL: "http://bridge"}
	if err := cfg.ValidateSyncReady(); err != nil {
		t.Errorf("sheet-only config should be valid: %v", err)
	}
	cfg = &Config{}
	if err := cfg.ValidateSyncReady(); err == nil {
		t.Error("empty config should be rejected")
	}
}
