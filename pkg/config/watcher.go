// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/knadh/koanf/providers/file"
)

// Watcher reloads the configuration when its file, or the profile file
// next to it, changes on disk.
type Watcher struct {
	path    string
	profile string
	logger  *slog.Logger

	mu        sync.RWMutex
	config    *Config
	listeners []func(*Config)
	providers []*file.File
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatchProfile also loads and watches the profile file of path.
func WithWatchProfile(profile string) WatcherOption {
	return func(w *Watcher) { w.profile = profile }
}

// NewWatcher loads path and returns a watcher for it. Call Start to begin
// watching.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config watcher needs a file path")
	}
	w := &Watcher{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	cfg, err := LoadWithProfile(w.path, w.profile)
	if err != nil {
		return nil, err
	}
	w.config = cfg
	return w, nil
}

// OnChange registers a callback run after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start watches the config file and its profile file, if any.
func (w *Watcher) Start() error {
	paths := []string{w.path}
	if p := profileConfigPath(w.path, w.profile); p != "" {
		paths = append(paths, p)
	}

	providers := make([]*file.File, 0, len(paths))
	for _, p := range paths {
		provider := file.Provider(p)
		if err := provider.Watch(w.onEvent); err != nil {
			w.unwatch(providers)
			return err
		}
		providers = append(providers, provider)
	}

	w.mu.Lock()
	w.providers = append(w.providers, providers...)
	w.mu.Unlock()
	w.logger.Info("config.watch.start", slog.Any("paths", paths))
	return nil
}

// Stop ends watching.
func (w *Watcher) Stop() {
	w.mu.Lock()
	providers := w.providers
	w.providers = nil
	w.mu.Unlock()
	w.unwatch(providers)
}

// unwatch runs without the lock: a reload in flight may be waiting on it.
func (w *Watcher) unwatch(providers []*file.File) {
	for _, p := range providers {
		if err := p.Unwatch(); err != nil {
			w.logger.Warn("config.watch.stop", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) onEvent(_ interface{}, err error) {
	if err != nil {
		w.logger.Error("config.watch.error", slog.String("error", err.Error()))
		return
	}
	w.reload()
}

func (w *Watcher) reload() {
	cfg, err := LoadWithProfile(w.path, w.profile)
	if err != nil {
		w.logger.Error("config.reload.failed", slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	w.config = cfg
	listeners := make([]func(*Config), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	w.logger.Info("config.reload.done", slog.String("path", w.path))
	for _, fn := range listeners {
		fn(cfg)
	}
}
