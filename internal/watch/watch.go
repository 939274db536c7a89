// Package watch re-runs a handler for mesh files as they change on disk.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Handler processes one changed file.
type Handler func(ctx context.Context, path string) error

// Options configure a Watcher.
type Options struct {
	// Pattern is matched against the base name of each file.
	Pattern string
	// Debounce collapses bursts of events for the same file.
	Debounce time.Duration
	// Ignore skips paths even when they match Pattern.
	Ignore func(path string) bool
	Logger *zap.Logger
}

// Watcher watches a directory tree and calls a Handler for matching files.
type Watcher struct {
	dir    string
	opts   Options
	handle Handler
	log    *zap.Logger

	fs    *fsnotify.Watcher
	ready chan string
	done  chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a Watcher for dir. Nothing is watched until Run.
func New(dir string, handle Handler, opts Options) (*Watcher, error) {
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		dir:     dir,
		opts:    opts,
		handle:  handle,
		log:     log.Named("watch"),
		fs:      fsWatch,
		ready:   make(chan string, 64),
		done:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run handles every matching file already under the directory, then every
// one created or written until ctx is done. Handler errors are logged and do
// not stop the watcher. Run may be called once.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	defer close(w.done)
	defer w.stopTimers()

	if err := w.watchRecursive(w.dir); err != nil {
		return err
	}
	w.log.Info("watching", zap.String("dir", w.dir), zap.String("pattern", w.opts.Pattern))

	for {
		select {
		case e, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(e)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case path := <-w.ready:
			start := time.Now()
			if err := w.handle(ctx, path); err != nil {
				w.log.Error("handler failed", zap.String("file", path), zap.Error(err))
				continue
			}
			w.log.Debug("handled", zap.String("file", path), zap.Duration("elapsed", time.Since(start)))

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handleEvent(e fsnotify.Event) {
	if e.Has(fsnotify.Create) {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			// Files can land in a new directory before its watch is added.
			if err := w.watchRecursive(e.Name); err != nil {
				w.log.Warn("watching new directory", zap.String("dir", e.Name), zap.Error(err))
			}
			return
		}
	}
	if e.Has(fsnotify.Create) || e.Has(fsnotify.Write) {
		w.schedule(e.Name)
	}
	if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
		w.cancel(e.Name)
		// Can't stat a removed path; drop it in case it was a watched directory.
		_ = w.fs.Remove(e.Name)
	}
}

// watchRecursive adds every directory under path and schedules the
// matching files found there.
func (w *Watcher) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && walkPath != path {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return w.fs.Add(walkPath)
		}
		w.schedule(walkPath)
		return nil
	})
}

// Match reports whether path would be passed to the handler.
func (w *Watcher) Match(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if ok, _ := filepath.Match(w.opts.Pattern, base); !ok {
		return false
	}
	return w.opts.Ignore == nil || !w.opts.Ignore(path)
}

func (w *Watcher) schedule(path string) {
	if !w.Match(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.opts.Debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
