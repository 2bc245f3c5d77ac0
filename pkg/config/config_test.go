// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ProfileEnv, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Backend.Timeout() != 10*time.Second || cfg.Backend.RetryAttempts != 3 {
		t.Errorf("unexpected backend defaults %+v", cfg.Backend)
	}
	if cfg.Dashboard.Interval != "1h" || cfg.Dashboard.Sequencing != "last-resolved" {
		t.Errorf("unexpected dashboard defaults %+v", cfg.Dashboard)
	}
	if cfg.Dashboard.AutoRefresh() != 0 {
		t.Errorf("auto refresh must be off by default")
	}
	if cfg.Store.Driver != "http" || cfg.Server.Addr != ":9897" {
		t.Errorf("unexpected store/server defaults %+v %+v", cfg.Store, cfg.Server)
	}
	if cfg.Events.SubjectPrefix != "console.events" {
		t.Errorf("unexpected subject prefix %q", cfg.Events.SubjectPrefix)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv(ProfileEnv, "")
	t.Setenv("CONSOLE_BACKEND_BASE_URL", "http://metrics:9898/api")
	t.Setenv("CONSOLE_DASHBOARD_AUTO_REFRESH_SECONDS", "30")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.BaseURL != "http://metrics:9898/api" {
		t.Errorf("expected base url from env, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Dashboard.AutoRefresh() != 30*time.Second {
		t.Errorf("expected auto refresh from env, got %v", cfg.Dashboard.AutoRefresh())
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv(ProfileEnv, "")
	path := filepath.Join(t.TempDir(), "console.yaml")
	writeFile(t, path, `
backend:
  base_url: http://bithon:9897/api
  textual_filters: true
dashboard:
  name: jvm
  cascade:
    appName: [instanceName]
store:
  driver: file
  path: ./dashboards
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Backend.TextualFilters || cfg.Dashboard.Name != "jvm" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if got := cfg.Dashboard.Cascade["appName"]; len(got) != 1 || got[0] != "instanceName" {
		t.Errorf("unexpected cascade %v", cfg.Dashboard.Cascade)
	}
	if cfg.Backend.RetryAttempts != 3 {
		t.Errorf("defaults must survive a partial file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, basePath, `
backend:
  base_url: http://localhost:9897/api
log:
  level: info
`)
	writeFile(t, filepath.Join(tmpDir, "config.dev.yaml"), `
log:
  level: debug
dashboard:
  auto_refresh_seconds: 10
`)
	writeFile(t, filepath.Join(tmpDir, "config.prod.yaml"), `
backend:
  base_url: https://metrics.example.com/api
log:
  level: warn
`)

	tests := []struct {
		name    string
		profile string
		level   string
		baseURL string
		refresh int
	}{
		{"no profile", "", "info", "http://localhost:9897/api", 0},
		{"dev", "dev", "debug", "http://localhost:9897/api", 10},
		{"prod", "prod", "warn", "https://metrics.example.com/api", 0},
		{"unknown profile", "staging", "info", "http://localhost:9897/api", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tt.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}
			if cfg.Log.Level != tt.level {
				t.Errorf("level: got %s, want %s", cfg.Log.Level, tt.level)
			}
			if cfg.Backend.BaseURL != tt.baseURL {
				t.Errorf("base url: got %s, want %s", cfg.Backend.BaseURL, tt.baseURL)
			}
			if cfg.Dashboard.AutoRefreshSeconds != tt.refresh {
				t.Errorf("refresh: got %d, want %d", cfg.Dashboard.AutoRefreshSeconds, tt.refresh)
			}
		})
	}
}

func TestLoadProfileFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, basePath, "log:\n  level: info\n")
	writeFile(t, filepath.Join(tmpDir, "config.dev.yaml"), "log:\n  level: debug\n")
	t.Setenv(ProfileEnv, "dev")

	cfg, err := Load(basePath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected %s to select the dev overlay, got %s", ProfileEnv, cfg.Log.Level)
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	base := filepath.Join(tmpDir, "console.yaml")
	writeFile(t, filepath.Join(tmpDir, "console.dev.yaml"), "{}\n")

	tests := []struct {
		base, profile, want string
	}{
		{base, "dev", filepath.Join(tmpDir, "console.dev.yaml")},
		{base, "prod", ""},
		{base, "", ""},
		{"", "dev", ""},
	}
	for _, tt := range tests {
		if got := profileConfigPath(tt.base, tt.profile); got != tt.want {
			t.Errorf("profileConfigPath(%q, %q) = %q, want %q", tt.base, tt.profile, got, tt.want)
		}
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"CONSOLE_BACKEND_BASE_URL":        "backend.base_url",
		"CONSOLE_LOG_LEVEL":               "log.level",
		"CONSOLE_EVENTS_NATS_URL":         "events.nats_url",
		"CONSOLE_TELEMETRY_OTLP_INSECURE": "telemetry.otlp_insecure",
		"CONSOLE_PROFILE":                 "",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
