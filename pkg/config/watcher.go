// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"
)

// Watcher polls the configuration file and its profile overlay and swaps
// the live configuration when either one changes. A running dashboard uses
// it to pick up a new auto refresh period or backend timeout without a
// restart. Reloads that leave the configuration unchanged notify nobody.
type Watcher struct {
	path     string
	profile  string
	files    []string
	interval time.Duration
	logger   *slog.Logger
	live     *ReloadableConfig

	mu        sync.Mutex
	stamps    map[string]fileStamp
	listeners []func(*Config)

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// fileStamp is what the watcher remembers of a file between polls. A file
// that does not exist has the zero stamp, so creating or deleting an
// overlay counts as a change.
type fileStamp struct {
	modTime time.Time
	size    int64
}

func stampOf(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatchProfile loads the given profile overlay on every reload and
// watches the overlay file, whether or not it exists yet.
func WithWatchProfile(profile string) WatcherOption {
	return func(w *Watcher) {
		w.profile = profile
	}
}

// NewWatcher loads the configuration at path and prepares to watch it.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: time.Second,
		logger:   slog.Default(),
		stamps:   make(map[string]fileStamp),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if path != "" {
		w.files = append(w.files, path)
		if overlay := overlayPath(path, w.profile); overlay != "" {
			w.files = append(w.files, overlay)
		}
	}
	for _, f := range w.files {
		w.stamps[f] = stampOf(f)
	}

	cfg, err := LoadWithProfile(path, w.profile)
	if err != nil {
		return nil, err
	}
	w.live = NewReloadableConfig(cfg)
	return w, nil
}

// overlayPath names the profile overlay of base without requiring it to
// exist.
func overlayPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + profile + ext
}

// OnChange registers a callback run after every reload that changed the
// configuration.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config { return w.live.Get() }

// Live returns the configuration handle swapped on every reload.
func (w *Watcher) Live() *ReloadableConfig { return w.live }

// Start begins polling until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				if w.poll() {
					w.reload()
				}
			}
		}
	}()
}

// Stop stops a started watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

// poll records the current stamp of every watched file and reports whether
// any of them moved.
func (w *Watcher) poll() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	moved := false
	for _, f := range w.files {
		if st := stampOf(f); st != w.stamps[f] {
			w.stamps[f] = st
			moved = true
		}
	}
	return moved
}

// reload loads the files again and, when the result differs from the live
// configuration, swaps it and notifies listeners. A file that fails to load
// leaves the live configuration in place.
func (w *Watcher) reload() (bool, error) {
	cfg, err := LoadWithProfile(w.path, w.profile)
	if err != nil {
		w.logger.Error("config.reload.failed", slog.String("path", w.path), slog.String("error", err.Error()))
		return false, err
	}
	prev := w.live.Get()
	if reflect.DeepEqual(prev, cfg) {
		w.logger.Debug("config.reload.unchanged", slog.String("path", w.path))
		return false, nil
	}
	w.live.Update(cfg)

	w.mu.Lock()
	listeners := slices.Clone(w.listeners)
	w.mu.Unlock()

	w.logger.Info("config.reload",
		slog.String("path", w.path),
		slog.Int("auto_refresh_seconds", cfg.Dashboard.AutoRefreshSeconds),
		slog.Int("backend_timeout_seconds", cfg.Backend.TimeoutSeconds),
	)
	for _, fn := range listeners {
		fn(cfg)
	}
	return true, nil
}

// WatchConfig starts a watcher on configPath and its profile overlay and
// returns it with the configuration it loaded.
func WatchConfig(ctx context.Context, configPath, profile string, opts ...WatcherOption) (*Watcher, *Config, error) {
	w, err := NewWatcher(configPath, append(opts, WithWatchProfile(profile))...)
	if err != nil {
		return nil, nil, err
	}
	w.Start(ctx)
	return w, w.Config(), nil
}

// ReloadableConfig is a Config that can be swapped atomically while readers
// keep using it.
type ReloadableConfig struct {
	mu     sync.RWMutex
	config *Config
}

func NewReloadableConfig(cfg *Config) *ReloadableConfig {
	return &ReloadableConfig{config: cfg}
}

func (r *ReloadableConfig) Get() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

func (r *ReloadableConfig) Update(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
}

func (r *ReloadableConfig) Backend() BackendConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Backend
}

func (r *ReloadableConfig) Dashboard() DashboardConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Dashboard
}

func (r *ReloadableConfig) Telemetry() TelemetryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Telemetry
}

func (r *ReloadableConfig) Log() LogConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Log
}
