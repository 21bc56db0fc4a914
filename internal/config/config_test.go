package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{EnvPath, "PORT", "DATABASE_URL", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Engine.Limits.MaxOptionSlots != 5000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Engine.Anneal.Patience != 250 || cfg.Engine.Anneal.MaxDuration != 25*time.Second {
		t.Errorf("unexpected anneal defaults: %+v", cfg.Engine.Anneal)
	}
}

func TestLoad_SearchPathAndOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "config/cbc.yaml", `
server:
  port: 9000
  request_timeout: 5s
engine:
  limits:
    max_respondents: 500
  anneal:
    iterations: 50
    max_duration: 2s
catalog:
  cache_ttl: 1m
`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("server section not loaded: %+v", cfg.Server)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unset field lost its default: %v", cfg.Server.ReadTimeout)
	}
	if cfg.Engine.Limits.MaxRespondents != 500 || cfg.Engine.Limits.MaxOptionSlots != 5000 {
		t.Errorf("limits = %+v", cfg.Engine.Limits)
	}
	if cfg.Engine.Anneal.Iterations != 50 || cfg.Engine.Anneal.MaxDuration != 2*time.Second {
		t.Errorf("anneal = %+v", cfg.Engine.Anneal)
	}
	if cfg.Catalog.CacheTTL != time.Minute {
		t.Errorf("cache ttl = %v", cfg.Catalog.CacheTTL)
	}

	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://localhost/cbc")
	t.Setenv("LOG_LEVEL", "debug")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Database.URL != "postgres://localhost/cbc" || cfg.Log.Level != "debug" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.Addr() != ":7070" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		env      map[string]string
		contains string
	}{
		{"Malformed YAML", "server: [", nil, "failed to parse"},
		{"Port out of range", "server:\n  port: 70000\n", nil, "invalid configuration"},
		{"Unknown log level", "log:\n  level: loud\n", nil, "invalid configuration"},
		{"Bad PORT", "", map[string]string{"PORT": "eighty"}, "invalid PORT"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := writeFile(t, t.TempDir(), "cbc.yaml", tc.body)
			t.Setenv(EnvPath, path)

			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("expected error containing %q, got %v", tc.contains, err)
			}
		})
	}

	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing file accepted")
	}
}
