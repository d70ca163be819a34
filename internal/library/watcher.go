package library

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay is how long a changed file must stay quiet before it is
// re-indexed. Transcoders and rippers write in bursts.
const debounceDelay = 2 * time.Second

// Watcher keeps the index current as the music directory changes.
// It watches directories recursively with fsnotify, debouncing writes
// so half-copied files are not indexed mid-transfer.
type Watcher struct {
	scanner *Scanner
	root    string
	logger  *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer

	wg sync.WaitGroup
}

// NewWatcher creates a watcher over the library root.
func NewWatcher(scanner *Scanner, root string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		scanner: scanner,
		root:    root,
		logger:  logger,
		watcher: fsw,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Start registers the watch tree and processes events until ctx ends.
func (w *Watcher) Start(ctx context.Context) error {
	if w.root == "" {
		<-ctx.Done()
		return nil
	}

	if err := w.watchTree(w.root); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.run(ctx)

	<-ctx.Done()
	w.wg.Wait()
	return w.watcher.Close()
}

// watchTree adds watches for a directory and all subdirectories.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("watch walk error", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() != "." && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to add watch", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.cancelPending(path)
		if err := w.scanner.RemovePath(ctx, path); err != nil {
			w.logger.Warn("remove from index failed", "path", path, "error", err)
		}

	case event.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// New directory: watch it and index its contents.
			if err := w.watchTree(path); err != nil {
				w.logger.Warn("watch new directory failed", "path", path, "error", err)
			}
			if err := w.scanner.IndexPath(ctx, path); err != nil {
				w.logger.Warn("index new directory failed", "path", path, "error", err)
			}
			return
		}
		w.debounce(ctx, path)

	case event.Has(fsnotify.Write):
		w.debounce(ctx, path)
	}
}

// debounce (re)schedules indexing of a path after it goes quiet.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := w.scanner.IndexPath(ctx, path); err != nil {
			if !os.IsNotExist(err) {
				w.logger.Warn("index path failed", "path", path, "error", err)
			}
		}
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
		delete(w.pending, path)
	}
}
