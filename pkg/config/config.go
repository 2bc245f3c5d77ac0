// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads console settings from defaults, files, profiles,
// environment variables and command line overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override (CONSOLE_BACKEND_BASE_URL).
const EnvPrefix = "CONSOLE_"

// ProfileEnv selects a profile overlay when --profile is not given.
const ProfileEnv = "CONSOLE_PROFILE"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Backend   BackendConfig   `koanf:"backend"`
	Store     StoreConfig     `koanf:"store"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	Events    EventsConfig    `koanf:"events"`
	Server    ServerConfig    `koanf:"server"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter           string            `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint       string            `koanf:"otlp_endpoint"`
	OTLPInsecure       bool              `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int               `koanf:"otlp_timeout_seconds"`
	OTLPHeaders        map[string]string `koanf:"otlp_headers"`
	MetricIntervalSec  int               `koanf:"metric_interval_seconds"`
}

// MetricInterval is the metric export period. Zero selects the exporter default.
func (t TelemetryConfig) MetricInterval() time.Duration {
	return time.Duration(t.MetricIntervalSec) * time.Second
}

type BackendConfig struct {
	BaseURL               string            `koanf:"base_url"`
	TimeoutSeconds        int               `koanf:"timeout_seconds"`
	RetryAttempts         int               `koanf:"retry_attempts"`
	BreakerThreshold      int               `koanf:"breaker_threshold"`
	BreakerTimeoutSeconds int               `koanf:"breaker_timeout_seconds"`
	TextualFilters        bool              `koanf:"textual_filters"`
	Headers               map[string]string `koanf:"headers"`
}

// Timeout returns the per-request timeout.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// BreakerTimeout returns how long the circuit stays open.
func (b BackendConfig) BreakerTimeout() time.Duration {
	return time.Duration(b.BreakerTimeoutSeconds) * time.Second
}

type StoreConfig struct {
	Driver string `koanf:"driver"` // file, sqlite, postgres, http
	Path   string `koanf:"path"`   // file directory or sqlite database
	DSN    string `koanf:"dsn"`    // postgres
	URL    string `koanf:"url"`    // http, defaults to backend.base_url
}

type DashboardConfig struct {
	Name                  string              `koanf:"name"`
	Interval              string              `koanf:"interval"`
	AutoRefreshSeconds    int                 `koanf:"auto_refresh_seconds"`
	Sequencing            string              `koanf:"sequencing"` // last-resolved, latest-issued
	Cascade               map[string][]string `koanf:"cascade"`
	SchemaCacheSize       int                 `koanf:"schema_cache_size"`
	SchemaCacheTTLSeconds int                 `koanf:"schema_cache_ttl_seconds"`
}

// AutoRefresh returns the auto refresh period; zero disables it.
func (d DashboardConfig) AutoRefresh() time.Duration {
	return time.Duration(d.AutoRefreshSeconds) * time.Second
}

// SchemaCacheTTL returns the schema cache entry lifetime.
func (d DashboardConfig) SchemaCacheTTL() time.Duration {
	return time.Duration(d.SchemaCacheTTLSeconds) * time.Second
}

type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

func defaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.exporter", "none")

	k.Set("backend.base_url", "http://localhost:8080/api")
	k.Set("backend.timeout_seconds", 10)
	k.Set("backend.retry_attempts", 3)
	k.Set("backend.breaker_threshold", 5)
	k.Set("backend.breaker_timeout_seconds", 30)

	k.Set("store.driver", "http")

	k.Set("dashboard.interval", "1h")
	k.Set("dashboard.auto_refresh_seconds", 0)
	k.Set("dashboard.sequencing", "last-resolved")
	k.Set("dashboard.schema_cache_size", 64)
	k.Set("dashboard.schema_cache_ttl_seconds", 300)

	k.Set("events.subject_prefix", "console.events")

	k.Set("server.addr", ":9897")
}

// Load reads defaults, the file at path (if any) and the environment.
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, os.Getenv(ProfileEnv))
}

// LoadWithProfile is Load with a profile overlay: for config.yaml and
// profile "dev", config.dev.yaml is merged over the base file when present.
func LoadWithProfile(path, profile string) (*Config, error) {
	k, err := load(path, profile)
	if err != nil {
		return nil, err
	}
	return unmarshal(k)
}

func load(path, profile string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	defaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if overlay := profileConfigPath(path, profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load profile %s: %w", overlay, err)
			}
		}
	}

	// CONSOLE_BACKEND_BASE_URL -> backend.base_url
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	return k, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if s == "profile" {
		return ""
	}
	section, rest, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + rest
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// profileConfigPath returns the overlay file for profile, or "" when the
// profile is empty or the file does not exist.
func profileConfigPath(base, profile string) string {
	candidate := overlayPath(base, profile)
	if candidate == "" {
		return ""
	}
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

type cliOptions struct {
	configPath string
	profile    string
	sets       map[string]any
}

// LoadWithCLI loads the configuration and applies --config, --profile (or
// --env) and repeated --set key=value flags from args.
func LoadWithCLI(args []string) (*Config, error) {
	cfg, _, err := ParseArgs(args)
	return cfg, err
}

// ParseArgs is LoadWithCLI that also returns the arguments it did not
// consume, in order.
func ParseArgs(args []string) (*Config, []string, error) {
	opts, rest, err := parseCLIOverrides(args)
	if err != nil {
		return nil, nil, err
	}
	profile := opts.profile
	if profile == "" {
		profile = os.Getenv(ProfileEnv)
	}
	k, err := load(opts.configPath, profile)
	if err != nil {
		return nil, nil, err
	}
	for key, value := range opts.sets {
		if err := k.Set(key, value); err != nil {
			return nil, nil, fmt.Errorf("apply --set %s: %w", key, err)
		}
	}
	cfg, err := unmarshal(k)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rest, nil
}

func parseCLIOverrides(args []string) (cliOptions, []string, error) {
	opts := cliOptions{sets: make(map[string]any)}
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			rest = append(rest, arg)
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("%s requires a value", name)
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config":
			opts.configPath = value
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			key, raw, ok := strings.Cut(value, "=")
			if !ok || strings.TrimSpace(key) == "" {
				return opts, nil, fmt.Errorf("invalid --set %q, expected key=value", value)
			}
			opts.sets[strings.TrimSpace(key)] = parseValue(raw)
		}
	}
	return opts, rest, nil
}

// parseValue decodes JSON literals (numbers, booleans, objects, arrays) and
// keeps everything else as a string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			return int64(f)
		}
		return v
	}
	return raw
}
