// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder holds configuration with atomic reloading capability. Platform,
// telemetry and status sections are fixed for the lifetime of a driver
// instance; a reload only swaps the Overrides section.
type Holder struct {
	current atomic.Pointer[Config]
	loader  *Loader
	logger  zerolog.Logger

	// Debounce collapses bursts of file events into one reload.
	Debounce time.Duration

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}

	reloadMu        sync.RWMutex
	reloadListeners []chan<- Config
}

// NewHolder creates a holder with the initial configuration.
func NewHolder(initial Config, loader *Loader, logger zerolog.Logger) *Holder {
	h := &Holder{
		loader:   loader,
		logger:   logger.With().Str("component", "config").Logger(),
		Debounce: 500 * time.Millisecond,
	}
	h.current.Store(&initial)
	return h
}

// Get returns the current configuration snapshot.
func (h *Holder) Get() Config {
	return *h.current.Load()
}

// Overrides returns the current user overrides.
func (h *Holder) Overrides() Overrides {
	return h.current.Load().Overrides
}

// Reload re-reads the file and applies the new Overrides section. If
// loading or validation fails the old configuration is kept.
func (h *Holder) Reload(_ context.Context) error {
	if h.loader == nil {
		return nil
	}
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	fresh, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	old := h.current.Load()
	next := *old
	next.Overrides = fresh.Overrides
	h.current.Store(&next)

	if fresh.Platform != old.Platform {
		h.logger.Warn().
			Str("event", "config.platform_ignored").
			Msg("platform section changed on disk; takes effect for new driver instances only")
	}
	h.logChanges(old.Overrides, next.Overrides)
	h.notifyListeners(next)

	h.logger.Info().Str("event", "config.reload_success").Msg("configuration reloaded successfully")
	return nil
}

// StartWatcher watches the config file for changes until ctx is cancelled
// or Stop is called. With no file path this is a no-op.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.loader == nil || h.loader.Path() == "" {
		h.logger.Info().Str("event", "config.watcher_disabled").Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(h.loader.Path()); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}

	h.watchMu.Lock()
	h.watcher = watcher
	h.done = make(chan struct{})
	done := h.done
	h.watchMu.Unlock()

	h.logger.Info().Str("event", "config.watcher_started").Str("path", h.loader.Path()).Msg("watching config file for changes")

	go h.watchLoop(ctx, watcher, done)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var debounce *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.logger.Debug().Str("event", "config.file_changed").Str("op", event.Op.String()).Msg("config file changed")
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(h.Debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			}

		case <-fire:
			if err := h.Reload(ctx); err != nil {
				h.logger.Error().Err(err).Str("event", "config.auto_reload_failed").Msg("automatic config reload failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}

// Stop closes the watcher and waits for the watch loop to exit.
func (h *Holder) Stop() {
	h.watchMu.Lock()
	w, done := h.watcher, h.done
	h.watcher, h.done = nil, nil
	h.watchMu.Unlock()

	if w != nil {
		_ = w.Close()
	}
	if done != nil {
		<-done
	}
}

// RegisterListener registers a channel to receive each new snapshot. Sends
// are non-blocking; a full channel misses the update.
func (h *Holder) RegisterListener(ch chan<- Config) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

func (h *Holder) notifyListeners(cfg Config) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()
	for _, ch := range h.reloadListeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Str("event", "config.listener_skip").Msg("skipped notifying listener (channel full)")
		}
	}
}

func (h *Holder) logChanges(old, next Overrides) {
	if old == next {
		return
	}
	h.logger.Info().
		Interface("old", old).
		Interface("new", next).
		Str("event", "config.overrides_changed").
		Msg("config changed: overrides")
}
