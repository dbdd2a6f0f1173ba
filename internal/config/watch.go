package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration whenever the file at configPath is written
// and invokes onChange with the freshly validated result. A save that fails to
// load or validate is logged and skipped, so a half-written file never reaches
// the callback. The returned stop function releases the watcher.
//
// The watch is on the directory, not the file: editors and Kubernetes
// ConfigMap mounts replace the file atomically, which would orphan a watch on
// the inode itself.
func Watch(configPath string, onChange func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(configPath)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(configPath)
				if err != nil {
					slog.Warn("config reload skipped", "path", configPath, "error", err)
					continue
				}
				slog.Info("config reloaded", "path", configPath)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
