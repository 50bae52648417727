package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/deepnoodle-ai/conductor/log"
)

const watchDebounce = 250 * time.Millisecond

// Watcher reloads the settings file when it changes on disk. Parse
// failures keep the previous settings so a half-saved edit cannot take
// down a running agent.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   log.Logger
	onChange func(*Settings)
	lastSeen map[string]time.Time
}

// NewWatcher creates a watcher for the settings file at path. onChange is
// invoked with each successfully reloaded Settings.
func NewWatcher(path string, logger log.Logger, onChange func(*Settings)) (*Watcher, error) {
	if path == "" {
		path = DefaultPath()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if logger == nil {
		logger = log.NewNullLogger()
	}
	return &Watcher{
		path:     path,
		watcher:  watcher,
		logger:   logger,
		onChange: onChange,
		lastSeen: make(map[string]time.Time),
	}, nil
}

// Start watches until ctx is done. Editors replace files rather than
// rewriting them, so the parent directory is watched and events are
// filtered to the settings file.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("settings watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	// Editors emit bursts of writes; collapse them.
	now := time.Now()
	if last, ok := w.lastSeen[event.Name]; ok && now.Sub(last) < watchDebounce {
		return
	}
	w.lastSeen[event.Name] = now

	settings, err := Load(w.path)
	if err != nil {
		w.logger.Warn("settings reload failed, keeping previous settings",
			"path", w.path, "error", err)
		return
	}
	w.logger.Info("settings reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(settings)
	}
}
