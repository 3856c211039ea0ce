package config

import (
	"io"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a GatewayConfig from disk whenever its backing file
// changes, debouncing rapid successive writes the way editors and atomic
// rename-based writers produce them. Grounded on the teacher's
// mcpservice/fs_resources.go runFsnotify loop: a single fsnotify.Watcher,
// a small per-event debounce timer, and a callback fired once settled --
// generalized here from "notify a listChanged subscriber" to "reload and
// hand the caller a fresh, validated GatewayConfig".
type Watcher struct {
	path     string
	debounce time.Duration
	log      *slog.Logger
}

// NewWatcher builds a Watcher for path with the given debounce window.
func NewWatcher(path string, debounce time.Duration, log *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{path: path, debounce: debounce, log: log}
}

// Watch runs until stop is closed, invoking onReload with a freshly loaded
// and validated GatewayConfig every time the file settles after a change.
// A reload that fails validation is logged and skipped -- the caller keeps
// running on its last-known-good config rather than crashing on a typo.
func (w *Watcher) Watch(stop <-chan struct{}, onReload func(*GatewayConfig)) error {
	if w.path == "" {
		<-stop
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(w.path); err != nil {
		return err
	}

	var timer *time.Timer
	reload := func() {
		cfg, err := Load(w.path)
		if err != nil {
			w.log.Warn("config: reload failed, keeping previous config", "path", w.path, "error", err)
			return
		}
		w.log.Info("config: reloaded", "path", w.path)
		onReload(cfg)
	}

	for {
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config: watcher error", "error", err)
		}
	}
}
