package collection

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DirWatcher watches environment directories (workspace .venv parents, conda
// envs dirs, virtualenvwrapper homes) and triggers a callback when an
// interpreter appears or disappears, typically to schedule a fresh discovery.
type DirWatcher struct {
	watcher    *fsnotify.Watcher
	debounceMs int
	lastChange time.Time
	mu         sync.Mutex
	logger     *logrus.Entry
	onChange   func(dir string)
}

// NewDirWatcher creates a watcher over the given directories. Directories
// that do not exist yet are skipped; the debounceMs parameter controls how
// long rapid bursts of filesystem events are coalesced.
func NewDirWatcher(dirs []string, debounceMs int, onChange func(string), logger *logrus.Entry) (*DirWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := 0
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logger.WithError(err).Debugf("Not watching %s", dir)
			continue
		}
		watched++
	}
	logger.Debugf("Watching %d environment directories", watched)

	if debounceMs <= 0 {
		debounceMs = 500
	}

	return &DirWatcher{
		watcher:    watcher,
		debounceMs: debounceMs,
		logger:     logger,
		onChange:   onChange,
	}, nil
}

// Start begins watching. It blocks until the context is cancelled.
func (w *DirWatcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if isInterpreterPath(event.Name) {
					w.handleChange(filepath.Dir(event.Name))
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// isInterpreterPath reports whether a path plausibly belongs to a Python
// environment: a python binary, a pyvenv.cfg, or a conda-meta directory.
func isInterpreterPath(path string) bool {
	base := filepath.Base(path)
	switch base {
	case "pyvenv.cfg", "conda-meta", "bin", "Scripts":
		return true
	}
	if strings.HasPrefix(base, "python") {
		return true
	}
	return false
}

// handleChange coalesces bursts and invokes the callback.
func (w *DirWatcher) handleChange(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := time.Since(w.lastChange)
	if elapsed < time.Duration(w.debounceMs)*time.Millisecond {
		w.logger.Debugf("Debounced: %s (only %v since last change)", dir, elapsed)
		return
	}
	w.lastChange = time.Now()

	w.logger.Infof("Environment directory changed: %s", dir)
	if w.onChange != nil {
		w.onChange(dir)
	}
}

// Close stops the watcher and releases resources.
func (w *DirWatcher) Close() error {
	return w.watcher.Close()
}
