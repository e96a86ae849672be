package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/dittobtt/internal/logger"
)

// Watch reloads the config file at path whenever it changes and passes the
// result to onChange. It blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file so that editors
// which replace the file through a rename keep triggering reloads. A
// config that fails to load or validate is logged and skipped.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(abs)
			if err != nil {
				logger.Warn("Ignoring invalid configuration change", logger.KeyPath, abs, logger.KeyError, err)
				continue
			}
			logger.Debug("Configuration reloaded", logger.KeyPath, abs)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Config watcher error", logger.KeyError, err)
		}
	}
}
