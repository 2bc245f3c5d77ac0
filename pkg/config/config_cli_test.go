// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadWithCLIOverrides(t *testing.T) {
	t.Setenv(ProfileEnv, "")
	path := filepath.Join(t.TempDir(), "settings.json")
	writeFile(t, path, `{
  "backend": {"base_url": "http://localhost:9897/api"},
  "telemetry": {"exporter": "stdout"}
}`)
	t.Setenv("CONSOLE_BACKEND_BASE_URL", "http://env:9897/api")

	cfg, err := LoadWithCLI([]string{
		"--config", path,
		"--set", "backend.base_url=http://cli:9897/api",
		"--set", "backend.textual_filters=true",
		"--set", "telemetry.otlp_timeout_seconds=12",
		"--set=dashboard.sequencing=latest-issued",
		`--set`, `dashboard.cascade={"appName":["instanceName"]}`,
		`--set`, `telemetry.otlp_headers={"x-api-key":"secret"}`,
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	if cfg.Backend.BaseURL != "http://cli:9897/api" {
		t.Fatalf("cli must win over env, got %s", cfg.Backend.BaseURL)
	}
	if !cfg.Backend.TextualFilters {
		t.Fatalf("expected backend.textual_filters=true")
	}
	if cfg.Telemetry.OTLPTimeoutSeconds != 12 || cfg.Telemetry.Exporter != "stdout" {
		t.Fatalf("unexpected telemetry %+v", cfg.Telemetry)
	}
	if cfg.Dashboard.Sequencing != "latest-issued" {
		t.Fatalf("expected sequencing override, got %s", cfg.Dashboard.Sequencing)
	}
	if !reflect.DeepEqual(cfg.Dashboard.Cascade["appName"], []string{"instanceName"}) {
		t.Fatalf("unexpected cascade %v", cfg.Dashboard.Cascade)
	}
	if cfg.Telemetry.OTLPHeaders["x-api-key"] != "secret" {
		t.Fatalf("unexpected headers %v", cfg.Telemetry.OTLPHeaders)
	}
}

func TestLoadWithCLIProfile(t *testing.T) {
	t.Setenv(ProfileEnv, "")
	dir := t.TempDir()
	base := filepath.Join(dir, "config.yaml")
	writeFile(t, base, "log:\n  level: info\n")
	writeFile(t, filepath.Join(dir, "config.dev.yaml"), "log:\n  level: debug\n")

	for _, args := range [][]string{
		{"--config", base, "--profile", "dev"},
		{"--config=" + base, "--profile=dev"},
		{"--config", base, "--env", "dev"},
	} {
		cfg, err := LoadWithCLI(args)
		if err != nil {
			t.Fatalf("LoadWithCLI(%v) failed: %v", args, err)
		}
		if cfg.Log.Level != "debug" {
			t.Errorf("LoadWithCLI(%v): expected dev overlay, got %s", args, cfg.Log.Level)
		}
	}
}

func TestParseArgsKeepsCommandArgs(t *testing.T) {
	t.Setenv(ProfileEnv, "")
	_, rest, err := ParseArgs([]string{"render", "--set", "log.level=debug", "--dashboard", "jvm", "--json"})
	if err != nil {
		t.Fatalf("ParseArgs failed: %v", err)
	}
	want := []string{"render", "--dashboard", "jvm", "--json"}
	if !reflect.DeepEqual(rest, want) {
		t.Fatalf("rest = %v, want %v", rest, want)
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--config"},
		{"--set"},
		{"--set", "invalid"},
		{"--set", "=value"},
		{"--profile"},
	} {
		if _, _, err := parseCLIOverrides(args); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"12", int64(12)},
		{"1.5", 1.5},
		{"true", true},
		{"checkout", "checkout"},
		{`["a","b"]`, []any{"a", "b"}},
	}
	for _, tt := range tests {
		if got := parseValue(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
