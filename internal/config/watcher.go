package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher notifies when the configuration file changes so callers can
// re-resolve the config and invalidate caches. The live config is
// never mutated in place.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	target   string
	onChange func()
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// NewWatcher starts watching the directory containing path. The
// directory is watched instead of the file itself because editors and
// atomic-rename writers replace the inode.
func NewWatcher(logger zerolog.Logger, path string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsw,
		logger:   logger.With().Str("component", "config-watcher").Logger(),
		target:   filepath.Base(path),
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Config file changed")
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		case <-w.stopCh:
			if w.timer != nil {
				w.timer.Stop()
			}
			return
		}
	}
}

// scheduleReload debounces bursts of write events into one callback.
func (w *Watcher) scheduleReload() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}
