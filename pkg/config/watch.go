package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/mediahub/pkg/observability"
)

// Watch reloads the YAML file at path whenever it changes and passes the result to
// onChange. The parent directory is watched so editors that replace the file by
// rename are seen. Parse failures are logged and the previous configuration stays.
// Watch returns after ctx is cancelled.
func Watch(ctx context.Context, path string, logger *observability.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	logger = logger.WithField("config_file", abs)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := LoadFile(abs)
			if err != nil {
				logger.WithError(err).Warn("Ignoring invalid config change")
				continue
			}
			logger.Info("Config file reloaded")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Config watcher error")
		}
	}
}

// ApplyLogLevel returns an onChange callback that updates logger's level
func ApplyLogLevel(logger *observability.Logger) func(*Config) {
	return func(cfg *Config) {
		logger.SetLevel(cfg.Observability.Level())
	}
}
