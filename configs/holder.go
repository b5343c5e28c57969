package configs

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"
)

// Holder serves the current credential record and swaps in valid edits of the
// runtime file. An invalid edit keeps the previous record.
type Holder struct {
	mu       sync.RWMutex
	current  Config
	path     string
	load     func() (Config, error)
	onReload func(Config, error)
	debounce time.Duration
}

// NewHolder creates a holder for initial. load re-reads the record on change.
func NewHolder(initial Config, path string, load func() (Config, error)) *Holder {
	return &Holder{
		current:  initial,
		path:     filepath.Clean(path),
		load:     load,
		debounce: 250 * time.Millisecond,
	}
}

// OnReload registers a callback invoked after every reload attempt.
// err is nil when the new record was applied.
func (h *Holder) OnReload(fn func(Config, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReload = fn
}

// Get returns the current record
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload re-reads the record and applies it if it validates
func (h *Holder) Reload() error {
	cfg, err := h.load()
	if err == nil {
		err = cfg.Validate()
	}

	h.mu.Lock()
	if err == nil {
		h.current = cfg
	}
	cb := h.onReload
	h.mu.Unlock()

	if cb != nil {
		cb(cfg, err)
	}
	if err != nil {
		return fmt.Errorf("reload %s: %w", h.path, err)
	}
	logger.Info("config reloaded", zap.Any("config", cfg.Masked()))
	return nil
}

// Watch reloads on changes to the runtime file until ctx is done. The parent
// directory is watched because atomic writers replace the file.
func (h *Holder) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", h.path, err)
	}

	logger.Info("watching config file", zap.String("path", h.path))
	go h.watchLoop(ctx, watcher)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(h.debounce, func() {
				if err := h.Reload(); err != nil {
					logger.Error("config reload rejected", zap.Error(err))
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error", zap.Error(err))
		}
	}
}
