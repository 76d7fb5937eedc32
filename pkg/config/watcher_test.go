// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherDetectsChanges(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, configPath, "log:\n  level: info\n")

	watcher, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	changes := make(chan *Config, 8)
	watcher.OnChange(func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Stop()

	if cfg := watcher.Config(); cfg.Log.Level != "info" {
		t.Errorf("expected level info, got %q", cfg.Log.Level)
	}

	writeFile(t, configPath, "log:\n  level: debug\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Log.Level == "debug" {
				if watcher.Config().Log.Level != "debug" {
					t.Fatalf("Config() not updated after reload")
				}
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for config change notification")
		}
	}
}

func TestWatcherKeepsConfigOnInvalidReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, configPath, "log:\n  level: warn\n")

	watcher, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	var calls atomic.Int32
	watcher.OnChange(func(*Config) { calls.Add(1) })

	writeFile(t, configPath, "log: [unclosed\n")
	watcher.reload()

	if calls.Load() != 0 {
		t.Errorf("listeners must not run on failed reload")
	}
	if watcher.Config().Log.Level != "warn" {
		t.Errorf("expected previous config to be kept, got %q", watcher.Config().Log.Level)
	}
}

func TestWatcherMultipleListeners(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "log:\n  level: info\n")

	watcher, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	var count1, count2 atomic.Int32
	watcher.OnChange(func(*Config) { count1.Add(1) })
	watcher.OnChange(func(*Config) { count2.Add(1) })

	writeFile(t, configPath, "log:\n  level: error\n")
	watcher.reload()

	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("expected both listeners called once, got count1=%d, count2=%d", count1.Load(), count2.Load())
	}
	if watcher.Config().Log.Level != "error" {
		t.Errorf("expected level error, got %q", watcher.Config().Log.Level)
	}
}

func TestWatcherStops(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "log: {}\n")

	watcher, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		watcher.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("watcher.Stop() did not complete in time")
	}
}

func TestWatcherWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, basePath, "memory:\n  provider: inmemory\n")
	writeFile(t, filepath.Join(tmpDir, "config.dev.yaml"), "memory:\n  provider: chromem\n")

	watcher, err := NewWatcher(basePath, WithWatchProfile("dev"))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if watcher.Config().Memory.Provider != "chromem" {
		t.Errorf("expected profile value, got %q", watcher.Config().Memory.Provider)
	}

	if _, err := NewWatcher(""); err == nil {
		t.Errorf("expected error without path")
	}
}
