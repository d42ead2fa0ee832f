package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events one save produces.
const watchDebounce = 100 * time.Millisecond

// Watch monitors the config file at path and the local inputs it names
// (Source.Inputs) and calls onChange with the freshly loaded Config after
// each change. It runs until ctx is cancelled.
//
// Watches are placed on the parent directories, so a file replaced by
// rename (atomic save) keeps being tracked. The set of input files is
// rebuilt from every reloaded Config.
//
// If a reload fails (e.g., invalid YAML), the error is logged and the
// previous config remains active; Watch does not call onChange.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	ws := &watchSet{watcher: watcher, dirs: make(map[string]bool)}
	if err := ws.track(path, cfg); err != nil {
		return err
	}
	slog.Info("config: watching for changes", "path", path, "inputs", len(ws.files)-1)

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		trigger string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// A rename over the file arrives as Create for its name.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !ws.files[filepath.Clean(event.Name)] {
				continue
			}
			trigger = event.Name
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			next, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			if err := ws.track(path, next); err != nil {
				slog.Error("config: cannot watch config directory", "path", path, "err", err)
			}

			slog.Info("config: change detected", "file", trigger)
			onChange(next)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// watchSet tracks the files of interest and the directories watched for them.
type watchSet struct {
	watcher *fsnotify.Watcher
	files   map[string]bool
	dirs    map[string]bool
}

// track replaces the tracked files with path plus cfg's inputs and adjusts
// directory watches to match. Failing to watch the config's own directory is
// an error; an input whose directory cannot be watched is logged and skipped.
func (ws *watchSet) track(path string, cfg *Config) error {
	files := make(map[string]bool)
	dirs := make(map[string]bool)

	for i, p := range append([]string{path}, cfg.Source.Inputs()...) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("config: watch %s: %w", p, err)
		}
		dir := filepath.Dir(abs)
		if !ws.dirs[dir] && !dirs[dir] {
			if err := ws.watcher.Add(dir); err != nil {
				if i == 0 {
					return fmt.Errorf("config: watch %s: %w", dir, err)
				}
				slog.Warn("config: input not watched", "path", p, "err", err)
				continue
			}
		}
		files[abs] = true
		dirs[dir] = true
	}

	for dir := range ws.dirs {
		if !dirs[dir] {
			_ = ws.watcher.Remove(dir)
		}
	}
	ws.files, ws.dirs = files, dirs
	return nil
}
