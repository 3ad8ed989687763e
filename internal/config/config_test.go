package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log format 'json', got %q", cfg.Log.Format)
	}
	if cfg.HTTP.Addr == "" {
		t.Error("expected a non-empty HTTP addr default")
	}
	if cfg.Database.Path == "" {
		t.Error("expected a non-empty database path default")
	}
	if !cfg.Database.WAL {
		t.Error("expected WAL enabled by default")
	}
	if cfg.Workflows.MaxTransitionDepth != 10 {
		t.Errorf("expected max transition depth 10, got %d", cfg.Workflows.MaxTransitionDepth)
	}
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\nhttp:\n  addr: 0.0.0.0:9000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected file override to set log level to warn, got %q", cfg.Log.Level)
	}
	if cfg.HTTP.Addr != "0.0.0.0:9000" {
		t.Errorf("expected file override to set http addr, got %q", cfg.HTTP.Addr)
	}

	t.Setenv("GOBBY_LOGGING_LEVEL", "debug")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected env override to win over file, got %q", cfg.Log.Level)
	}
}

func TestLoadMissingExplicitFileErrors(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for explicitly specified missing file, got config %+v", cfg)
	}
}

func TestTestProtectEnvOverride(t *testing.T) {
	t.Setenv("GOBBY_TEST_PROTECT", "true")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.TestProtect {
		t.Error("expected GOBBY_TEST_PROTECT=true to set TestProtect")
	}
}
