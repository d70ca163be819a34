// Package library maintains the music library index: a scanner that
// walks the collection, an fsnotify watcher that keeps the index
// current, and the narrow lookup contract the streaming core consumes.
package library

import (
	"context"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	"github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/store"
)

// Index resolves opaque library identifiers to playable media sources.
// This is the only contract the streaming core depends on; tests use an
// in-memory fake.
type Index interface {
	// Lookup returns the media source for an item ID, or nil when the
	// item is not indexed or is not a playable file.
	Lookup(ctx context.Context, itemID string) (*domain.MediaSource, error)
}

// Service is the store-backed Index implementation, shared by the
// browse API and the streaming core.
type Service struct {
	store *store.Store
}

// NewService creates a library service over the index store.
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Lookup implements Index.
func (s *Service) Lookup(ctx context.Context, itemID string) (*domain.MediaSource, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !item.Playable() {
		return nil, nil
	}
	return item.Source, nil
}

// Children lists the direct children of a library directory path.
func (s *Service) Children(ctx context.Context, parent string) ([]*domain.Item, error) {
	return s.store.ListChildren(ctx, parent)
}
