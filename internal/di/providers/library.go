package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/harmoniaapp/harmonia-server/internal/config"
	"github.com/harmoniaapp/harmonia-server/internal/library"
	"github.com/harmoniaapp/harmonia-server/internal/logger"
	"github.com/harmoniaapp/harmonia-server/internal/search"
	"github.com/harmoniaapp/harmonia-server/internal/store"
)

// StoreHandle wraps the index store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the Badger-backed library index store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	s, err := store.New(filepath.Join(cfg.App.WorkingDir, "index"), log.Logger)
	if err != nil {
		return nil, err
	}
	return &StoreHandle{Store: s}, nil
}

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.Index
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve item index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	idx, err := search.NewIndex(cfg.App.WorkingDir, log.Logger)
	if err != nil {
		return nil, err
	}
	return &SearchIndexHandle{Index: idx}, nil
}

// ProvideLibraryService provides the store-backed library index contract.
func ProvideLibraryService(i do.Injector) (*library.Service, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	return library.NewService(storeHandle.Store), nil
}

// ProvideScanner provides the library scanner.
func ProvideScanner(i do.Injector) (*library.Scanner, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	searchHandle := do.MustInvoke[*SearchIndexHandle](i)

	return library.NewScanner(storeHandle.Store, searchHandle.Index, cfg.Library.MusicPath, log.Logger), nil
}

// WatcherHandle wraps the library watcher with its lifecycle.
type WatcherHandle struct {
	*library.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *WatcherHandle) Shutdown() error {
	h.cancel()
	<-h.done
	return nil
}

// ProvideWatcher provides the running file-system watcher.
func ProvideWatcher(i do.Injector) (*WatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	scanner := do.MustInvoke[*library.Scanner](i)

	w, err := library.NewWatcher(scanner, cfg.Library.MusicPath, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(ctx); err != nil {
			log.Error("library watcher stopped", "error", err)
		}
	}()

	return &WatcherHandle{Watcher: w, cancel: cancel, done: done}, nil
}
