package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// LevelWatcher watches a config file and calls onChange with the file's
// path whenever it is written or created. It reads nothing itself;
// onChange re-loads the file and applies the new log level. Every other
// configuration value is fixed at startup; only the log level is
// live-reloadable.
type LevelWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *slog.Logger
	done    chan struct{}
}

// NewLevelWatcher creates a watcher for path. Callers must call Start to
// begin watching and Stop to release the underlying inotify handle.
func NewLevelWatcher(path string, logger *slog.Logger) (*LevelWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Watch the containing directory, not the file itself, so editors
	// that write-rename (vim, many config management tools) are caught.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}

	return &LevelWatcher{watcher: w, path: path, logger: logger, done: make(chan struct{})}, nil
}

// Start blocks, calling onChange each time path's directory reports a
// write or create event naming path, until Stop is called.
func (w *LevelWatcher) Start(onChange func(path string)) {
	w.logger.Info("config watcher started", "path", w.path)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug("config file changed", "path", event.Name, "op", event.Op.String())
				onChange(w.path)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// StartAsync runs Start in its own goroutine.
func (w *LevelWatcher) StartAsync(onChange func(path string)) {
	go w.Start(onChange)
}

// Stop shuts down the watcher.
func (w *LevelWatcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

// ParseLevel maps a config string to a slog.Level, defaulting to Info for
// an unrecognized value rather than failing a live reload outright.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
