package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
)

const itemPrefix = "item:"

// PutItem inserts or replaces a library item.
func (s *Store) PutItem(ctx context.Context, item *domain.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(itemPrefix+item.ID), data)
	})
}

// GetItem retrieves a library item by ID.
// Returns ErrNotFound when the ID is not indexed.
func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var item domain.Item
	err := s.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get([]byte(itemPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get item: %w", err)
		}
		return entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem removes a library item. Missing IDs are not an error.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(itemPrefix + id))
	})
}

// DeleteItemsUnder removes every item whose ID starts with the given
// path prefix (a directory and its descendants). It returns the
// deleted item IDs so callers can invalidate derived indexes.
func (s *Store) DeleteItemsUnder(ctx context.Context, pathPrefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(itemPrefix + pathPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			return ids, err
		}
		ids = append(ids, strings.TrimPrefix(string(key), itemPrefix))
	}
	return ids, nil
}

// ListChildren returns the direct children of a library directory path,
// ordered by ID. The root is addressed as "/".
func (s *Store) ListChildren(ctx context.Context, parent string) ([]*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !strings.HasSuffix(parent, "/") {
		parent += "/"
	}

	var children []*domain.Item
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         []byte(itemPrefix + parent),
			PrefetchValues: true,
			PrefetchSize:   64,
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), itemPrefix)

			// Skip grandchildren: anything with a separator past the parent.
			rest := strings.TrimPrefix(id, parent)
			if rest == "" || strings.Contains(rest, "/") {
				continue
			}

			var item domain.Item
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return fmt.Errorf("unmarshal item %s: %w", id, err)
			}
			children = append(children, &item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

// ForEachItem streams every indexed item to fn. Iteration stops on the
// first error fn returns.
func (s *Store) ForEachItem(ctx context.Context, fn func(*domain.Item) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         []byte(itemPrefix),
			PrefetchValues: true,
			PrefetchSize:   64,
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var item domain.Item
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			if err := fn(&item); err != nil {
				return err
			}
		}
		return nil
	})
}
