// Package store persists the library index in BadgerDB.
//
// Values are JSON-serialized domain types under prefixed keys. The
// single prefix in use is "item:" followed by the library item ID, so
// a prefix scan over "item:/Artist/Album/" enumerates an album.
package store

import (
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/harmoniaapp/harmonia-server/internal/errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.ErrNotFound

// Store wraps a Badger database holding the library index.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New opens (or creates) the database at path.
func New(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Badger's own logger is noisy; we log at the store level.

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "open index database")
	}

	return &Store{db: db, logger: logger}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
