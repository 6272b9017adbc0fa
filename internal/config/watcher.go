package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce collapses the bursts of events editors produce for
// one save.
const DefaultWatchDebounce = 200 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk and hands
// the new contents to a callback. The parent directory is watched, so
// editors that save by renaming a temporary file are handled.
type Watcher struct {
	path     string
	onChange func(*File)
	logger   *slog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets a custom logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithWatchDebounce sets how long the file must stay quiet before it is
// reloaded.
func WithWatchDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for path. onChange runs on the watcher
// goroutine after every successful reload.
func NewWatcher(path string, onChange func(*File), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		path:     abs,
		onChange: onChange,
		debounce: DefaultWatchDebounce,
		watcher:  fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching. It returns immediately.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.running = true
	go w.run(ctx)
	w.logger.Debug("watching configuration file", "path", w.path)
	return nil
}

// Stop ends watching and waits for the watcher goroutine.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("configuration watcher error", "error", err)

		case <-timerC:
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	f, err := LoadConfigFile(w.path)
	if err != nil {
		// a rename-save leaves the file missing for a moment; the Create
		// event that follows triggers another reload
		w.logger.Warn("failed to reload configuration", "path", w.path, "error", err)
		return
	}
	w.logger.Info("configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(f)
	}
}

// LiveTarget is the part of the running classifier that follows the
// configuration file.
type LiveTarget interface {
	SetThreshold(t float64) error
	SetKeywords(words []string) bool
}

// LiveUpdate returns a Watcher callback that pushes the threshold and the
// keyword list of a reloaded file into t. Fields missing from the file
// leave t unchanged.
func LiveUpdate(t LiveTarget, logger *slog.Logger) func(*File) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(f *File) {
		if f.Threshold != nil {
			if err := t.SetThreshold(*f.Threshold); err != nil {
				logger.Warn("ignoring threshold from configuration", "threshold", *f.Threshold, "error", err)
			}
		}
		if len(f.Keywords) > 0 && !t.SetKeywords(f.Keywords) {
			logger.Debug("classifier backend does not use keywords")
		}
	}
}
