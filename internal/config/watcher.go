package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"tradeloop/internal/logger"
)

// ChangeListener receives every successfully reloaded config.
type ChangeListener func(*Config)

// Watcher reloads the config when any of its files change. Editors often
// write through a rename, so the parent directories are watched.
type Watcher struct {
	path     string
	files    map[string]bool
	debounce time.Duration
	onChange ChangeListener
}

func NewWatcher(cfg *Config, path string, onChange ChangeListener) *Watcher {
	files := make(map[string]bool)
	for _, f := range cfg.Files() {
		files[filepath.Clean(f)] = true
	}
	// the override file may not exist yet
	if cfg.App.OverridePath != "" {
		files[filepath.Clean(cfg.App.OverridePath)] = true
	}
	return &Watcher{path: path, files: files, debounce: 500 * time.Millisecond, onChange: onChange}
}

func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer fw.Close()
	dirs := make(map[string]bool)
	for f := range w.files {
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	logger.Infof("config watcher: watching %d files", len(w.files))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("config watcher: %v", err)
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Errorf("config reload failed (%s): %v", w.path, err)
		return
	}
	logger.Infof("config reloaded from %s", filepath.Base(w.path))
	if w.onChange == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("config listener panic: %v", r)
		}
	}()
	w.onChange(cfg)
}
