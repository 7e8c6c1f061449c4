// Package watcher reports changes to the selected source files on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type Watcher interface {
	Sync(paths []string) error
	Stop() error
	OnChange(callback func(path string, event EventType))
}

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FSWatcher watches the directories holding a set of files and reports
// events for those files only.
type FSWatcher struct {
	logger *slog.Logger
	fs     *fsnotify.Watcher

	mu       sync.Mutex
	files    map[string]struct{}
	dirs     map[string]struct{}
	callback func(path string, event EventType)

	stopOnce sync.Once
	done     chan struct{}
}

func New(logger *slog.Logger) (*FSWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &FSWatcher{
		logger: logger,
		fs:     fw,
		files:  make(map[string]struct{}),
		dirs:   make(map[string]struct{}),
		done:   make(chan struct{}),
	}, nil
}

func (w *FSWatcher) OnChange(callback func(path string, event EventType)) {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
}

// Sync replaces the watched file set. Directories no longer holding a
// watched file are dropped.
func (w *FSWatcher) Sync(paths []string) error {
	files := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		p = filepath.Clean(p)
		files[p] = struct{}{}
		dirs[filepath.Dir(p)] = struct{}{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for dir := range w.dirs {
		if _, keep := dirs[dir]; keep {
			continue
		}
		if err := w.fs.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			w.logger.Debug("failed to unwatch directory", "dir", dir, "error", err)
		}
		delete(w.dirs, dir)
	}
	for dir := range dirs {
		if _, ok := w.dirs[dir]; ok {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			errs = append(errs, fmt.Errorf("watch %s: %w", dir, err))
			continue
		}
		w.dirs[dir] = struct{}{}
	}
	w.files = files
	return errors.Join(errs...)
}

// Watched reports whether path is in the watched set.
func (w *FSWatcher) Watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[filepath.Clean(path)]
	return ok
}

// Run processes events until ctx is done or Stop is called.
func (w *FSWatcher) Run(ctx context.Context) {
	w.logger.Info("source watcher started")
	defer w.logger.Info("source watcher stopped")

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

func (w *FSWatcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	var kind EventType
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		kind = EventDelete
	case event.Op&fsnotify.Create != 0:
		kind = EventCreate
	case event.Op&fsnotify.Write != 0:
		kind = EventModify
	default:
		return
	}

	w.mu.Lock()
	_, watched := w.files[path]
	if watched && kind == EventDelete {
		delete(w.files, path)
	}
	callback := w.callback
	w.mu.Unlock()

	if !watched {
		return
	}
	w.logger.Debug("source file changed", "path", path, "event", kind)
	if callback != nil {
		callback(path, kind)
	}
}

func (w *FSWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}
