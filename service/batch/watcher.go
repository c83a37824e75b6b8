package batch

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher wakes a waiting scanner when batch files change. Without fsnotify
// it degrades to polling.
type Watcher struct {
	dir      string
	interval time.Duration
	logger   *slog.Logger

	notify  chan struct{}
	watcher *fsnotify.Watcher
	once    sync.Once
}

// NewWatcher creates a watcher over dir that polls every interval at the
// latest.
func NewWatcher(dir string, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, interval: interval, logger: logger, notify: make(chan struct{}, 1)}
}

// Start subscribes to file events. A failure is logged and leaves the
// watcher in polling mode.
func (w *Watcher) Start() {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		w.logger.Warn("batch watcher falls back to polling", "dir", w.dir, "error", err)
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("batch watcher falls back to polling", "dir", w.dir, "error", err)
		return
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		w.logger.Warn("batch watcher falls back to polling", "dir", w.dir, "error", err)
		return
	}
	w.watcher = watcher
	go w.watchLoop(watcher)
}

func (w *Watcher) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				w.Notify()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("batch watcher error", "error", err)
		}
	}
}

// Notify wakes one pending Wait.
func (w *Watcher) Notify() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Wait blocks until a change is observed, the poll interval elapses or ctx
// is done.
func (w *Watcher) Wait(ctx context.Context) error {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.notify:
		return nil
	case <-timer.C:
		return nil
	}
}

// Close releases the file watch.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}
