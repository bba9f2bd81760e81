package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RESERVOIR_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("TIMELINE_BATCH_SIZE", "")
	t.Setenv("TIMELINE_DEFAULT_PAGE_SIZE", "")
	t.Setenv("DEFAULT_UNIT_SYSTEM", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Timeline.BatchSize != 1000 || cfg.Timeline.DefaultPageSize != 500 {
		t.Fatalf("unexpected defaults %+v", cfg.Timeline)
	}
	if cfg.Timeline.DefaultUnitSystem != "EN" {
		t.Fatalf("expected EN, got %q", cfg.Timeline.DefaultUnitSystem)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reservoir.yaml")
	data := []byte(`
http_addr: ":9090"
jwt_issuer: reservoir-ops
jwt_leeway: 30s
timeline:
  batch_size: 200
  default_page_size: 50
projects:
  SWT/KEYS:
    batch_size: 25
    default_unit_system: si
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RESERVOIR_CONFIG", path)
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("TIMELINE_BATCH_SIZE", "")
	t.Setenv("TIMELINE_DEFAULT_PAGE_SIZE", "75")
	t.Setenv("DEFAULT_UNIT_SYSTEM", "")
	t.Setenv("AUTH_JWT_ISSUER", "")
	t.Setenv("AUTH_JWT_LEEWAY", "")
	t.Setenv("AUTH_JWT_AUDIENCE", "water-management")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected yaml addr, got %q", cfg.HTTPAddr)
	}
	if cfg.JWTIssuer != "reservoir-ops" || cfg.JWTAudience != "water-management" || cfg.JWTLeeway != 30*time.Second {
		t.Fatalf("unexpected jwt settings %q %q %s", cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTLeeway)
	}
	if cfg.Timeline.DefaultPageSize != 75 {
		t.Fatalf("expected env override, got %d", cfg.Timeline.DefaultPageSize)
	}
	keys := cfg.TimelineFor("SWT/KEYS")
	if keys.BatchSize != 25 || keys.DefaultPageSize != 75 || keys.DefaultUnitSystem != "SI" {
		t.Fatalf("unexpected project override %+v", keys)
	}
	if other := cfg.TimelineFor("SWT/TENK"); other.BatchSize != 200 {
		t.Fatalf("expected base batch size, got %d", other.BatchSize)
	}
}

func TestLoadRejectsUnitSystem(t *testing.T) {
	t.Setenv("RESERVOIR_CONFIG", "")
	t.Setenv("DEFAULT_UNIT_SYSTEM", "metric")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error")
	}
}
