// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// touch rewrites path and moves its mtime forward so coarse filesystem
// timestamps still register a change.
func touch(t *testing.T, path, content string) {
	t.Helper()
	writeFile(t, path, content)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcherDetectsChanges(t *testing.T) {
	t.Setenv(ProfileEnv, "")
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "dashboard:\n  auto_refresh_seconds: 10\n")

	watcher, err := NewWatcher(configPath, WithWatchInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	changes := make(chan *Config, 1)
	watcher.OnChange(func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Stop()

	if got := watcher.Config().Dashboard.AutoRefreshSeconds; got != 10 {
		t.Fatalf("expected initial refresh 10, got %d", got)
	}

	touch(t, configPath, "dashboard:\n  auto_refresh_seconds: 60\n")

	select {
	case cfg := <-changes:
		if cfg.Dashboard.AutoRefreshSeconds != 60 {
			t.Errorf("expected refresh 60, got %d", cfg.Dashboard.AutoRefreshSeconds)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config change notification")
	}
	if watcher.Config().Dashboard.AutoRefreshSeconds != 60 {
		t.Errorf("watcher must expose the reloaded config")
	}
}

func TestWatcherMultipleListeners(t *testing.T) {
	t.Setenv(ProfileEnv, "")
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "log:\n  level: info\n")

	watcher, err := NewWatcher(configPath, WithWatchInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	var count1, count2 atomic.Int32
	done := make(chan struct{}, 2)
	watcher.OnChange(func(*Config) { count1.Add(1); done <- struct{}{} })
	watcher.OnChange(func(*Config) { count2.Add(1); done <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Stop()

	touch(t, configPath, "log:\n  level: debug\n")

	for range 2 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for listeners")
		}
	}
	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("expected both listeners called once, got %d and %d", count1.Load(), count2.Load())
	}
}

func TestWatcherKeepsConfigOnInvalidReload(t *testing.T) {
	t.Setenv(ProfileEnv, "")
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "log:\n  level: warn\n")

	watcher, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	touch(t, configPath, "log: [unterminated\n")
	if !watcher.poll() {
		t.Fatalf("expected a change")
	}
	if changed, err := watcher.reload(); err == nil || changed {
		t.Errorf("expected a failed reload, got changed=%v err=%v", changed, err)
	}
	if watcher.Config().Log.Level != "warn" {
		t.Errorf("invalid reload must keep the previous config")
	}
}

func TestWatcherIgnoresUnchangedContent(t *testing.T) {
	t.Setenv(ProfileEnv, "")
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "dashboard:\n  auto_refresh_seconds: 10\n")

	watcher, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	var calls atomic.Int32
	watcher.OnChange(func(*Config) { calls.Add(1) })
	before := watcher.Config()

	touch(t, configPath, "dashboard:\n  auto_refresh_seconds: 10\n")
	if !watcher.poll() {
		t.Fatalf("a new mtime must count as a change")
	}
	if watcher.poll() {
		t.Errorf("a second poll without writes must not report a change")
	}
	if changed, err := watcher.reload(); err != nil || changed {
		t.Errorf("same content must not change the config: changed=%v err=%v", changed, err)
	}
	if calls.Load() != 0 || watcher.Config() != before {
		t.Errorf("listeners ran or the config was swapped for identical content")
	}
}

func TestWatcherPicksUpNewOverlay(t *testing.T) {
	t.Setenv(ProfileEnv, "")
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, basePath, "dashboard:\n  name: base\n")

	watcher, err := NewWatcher(basePath, WithWatchProfile("dev"))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if watcher.poll() {
		t.Fatalf("nothing was written yet")
	}

	writeFile(t, filepath.Join(tmpDir, "config.dev.yaml"), "dashboard:\n  name: dev\n")
	if !watcher.poll() {
		t.Fatalf("creating the overlay must count as a change")
	}
	if changed, err := watcher.reload(); err != nil || !changed {
		t.Fatalf("expected a reload, got changed=%v err=%v", changed, err)
	}
	if got := watcher.Live().Dashboard().Name; got != "dev" {
		t.Errorf("expected the new overlay to apply, got %q", got)
	}
}

func TestWatcherStops(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "log: {}\n")

	watcher, err := NewWatcher(configPath, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	watcher.Start(context.Background())

	done := make(chan struct{})
	go func() {
		watcher.Stop()
		watcher.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("watcher.Stop() did not complete in time")
	}
}

func TestReloadableConfig(t *testing.T) {
	cfg1 := &Config{Dashboard: DashboardConfig{Name: "jvm"}, Backend: BackendConfig{BaseURL: "a"}}
	cfg2 := &Config{Dashboard: DashboardConfig{Name: "web"}, Backend: BackendConfig{BaseURL: "b"}}

	rc := NewReloadableConfig(cfg1)
	if rc.Dashboard().Name != "jvm" || rc.Backend().BaseURL != "a" {
		t.Errorf("unexpected initial config")
	}

	rc.Update(cfg2)
	if rc.Dashboard().Name != "web" || rc.Get().Backend.BaseURL != "b" {
		t.Errorf("update not visible")
	}
}

func TestWatchConfigWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	writeFile(t, basePath, "dashboard:\n  name: base\n")
	writeFile(t, devPath, "dashboard:\n  name: dev\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, cfg, err := WatchConfig(ctx, basePath, "dev", WithWatchInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to watch config: %v", err)
	}
	defer watcher.Stop()

	if cfg.Dashboard.Name != "dev" {
		t.Errorf("expected the dev overlay, got %q", cfg.Dashboard.Name)
	}
	if len(watcher.files) != 2 || watcher.files[1] != devPath {
		t.Errorf("expected the overlay to be watched, got %v", watcher.files)
	}
}
