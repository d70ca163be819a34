package library

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	"github.com/harmoniaapp/harmonia-server/internal/id"
	"github.com/harmoniaapp/harmonia-server/internal/store"
)

// audioExtensions are the file types the scanner indexes as playable.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".m4b":  true,
	".mp4":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".wav":  true,
	".wma":  true,
	".ape":  true,
}

// sliceSidecarSuffix names the optional sidecar carrying pre-resolved
// time slices of a physical file (virtual cue tracks). Cue-sheet
// parsing itself happens upstream of this server.
const sliceSidecarSuffix = ".slices.json"

// sliceEntry is one pre-resolved slice in a sidecar file.
type sliceEntry struct {
	Title           string  `json:"title"`
	StartSeconds    float64 `json:"start_seconds"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// ItemIndexer receives index updates for derived indexes (search).
// A nil indexer disables the notifications.
type ItemIndexer interface {
	IndexItem(item *domain.Item) error
	DeleteItem(itemID string) error
}

// Scanner walks the music directory and fills the index store.
type Scanner struct {
	store   *store.Store
	indexer ItemIndexer
	root    string
	logger  *slog.Logger
}

// NewScanner creates a scanner rooted at the music path.
func NewScanner(s *store.Store, indexer ItemIndexer, root string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{store: s, indexer: indexer, root: root, logger: logger}
}

// Scan walks the library root and upserts every directory, audio file,
// and sidecar-declared virtual track into the index. It returns the
// number of items indexed.
func (sc *Scanner) Scan(ctx context.Context) (int, error) {
	if sc.root == "" {
		return 0, nil
	}

	runID := id.MustGenerate("scan")
	start := time.Now()
	count := 0

	err := filepath.WalkDir(sc.root, func(path string, d os.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			sc.logger.Warn("scan walk error", "path", path, "error", err)
			return nil
		}

		// Skip hidden files and directories.
		if d.Name() != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		n, err := sc.indexEntry(ctx, path, d.IsDir())
		if err != nil {
			sc.logger.Warn("index entry failed", "path", path, "error", err)
			return nil
		}
		count += n
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("scan library: %w", err)
	}

	sc.logger.Info("library scan complete",
		slog.String("scan_id", runID),
		slog.Int("items", count),
		slog.Duration("elapsed", time.Since(start)),
	)
	return count, nil
}

// IndexPath upserts a single filesystem path (used by the watcher).
func (sc *Scanner) IndexPath(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	_, err = sc.indexEntry(ctx, path, info.IsDir())
	return err
}

// RemovePath drops the index entries for a deleted path and everything
// under it (including virtual tracks of a deleted file).
func (sc *Scanner) RemovePath(ctx context.Context, path string) error {
	itemID, err := sc.itemID(path)
	if err != nil {
		return err
	}
	if err := sc.store.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	sc.unindex(itemID)

	// Children of a directory share the "<id>/" prefix; virtual tracks
	// of a file share "<id>#".
	for _, prefix := range []string{itemID + "/", itemID + "#"} {
		ids, err := sc.store.DeleteItemsUnder(ctx, prefix)
		for _, id := range ids {
			sc.unindex(id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// put writes an item to the store and mirrors it into derived indexes.
func (sc *Scanner) put(ctx context.Context, item *domain.Item) error {
	if err := sc.store.PutItem(ctx, item); err != nil {
		return err
	}
	if sc.indexer != nil {
		if err := sc.indexer.IndexItem(item); err != nil {
			sc.logger.Warn("search index update failed", "item_id", item.ID, "error", err)
		}
	}
	return nil
}

func (sc *Scanner) unindex(itemID string) {
	if sc.indexer == nil {
		return
	}
	if err := sc.indexer.DeleteItem(itemID); err != nil {
		sc.logger.Warn("search index delete failed", "item_id", itemID, "error", err)
	}
}

// indexEntry registers one path, returning how many items it produced.
func (sc *Scanner) indexEntry(ctx context.Context, path string, isDir bool) (int, error) {
	if strings.HasSuffix(path, sliceSidecarSuffix) {
		return 0, nil
	}

	itemID, err := sc.itemID(path)
	if err != nil {
		return 0, err
	}
	if itemID == "/" {
		return 0, nil
	}

	if isDir {
		err := sc.put(ctx, &domain.Item{
			ID:        itemID,
			Title:     filepath.Base(path),
			IsDir:     true,
			IndexedAt: time.Now(),
		})
		if err != nil {
			return 0, err
		}
		return 1, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !audioExtensions[ext] {
		return 0, nil
	}

	err = sc.put(ctx, &domain.Item{
		ID:    itemID,
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Source: &domain.MediaSource{
			AbsolutePath: path,
		},
		IndexedAt: time.Now(),
	})
	if err != nil {
		return 0, err
	}
	count := 1

	n, err := sc.indexSlices(ctx, path, itemID)
	if err != nil {
		sc.logger.Warn("slice sidecar rejected", "path", path, "error", err)
	}
	count += n

	return count, nil
}

// indexSlices registers virtual tracks declared by a slice sidecar.
// Virtual IDs append "#<n>" to the physical item's ID.
func (sc *Scanner) indexSlices(ctx context.Context, path, itemID string) (int, error) {
	data, err := os.ReadFile(path + sliceSidecarSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var slices []sliceEntry
	if err := json.Unmarshal(data, &slices); err != nil {
		return 0, fmt.Errorf("parse %s%s: %w", path, sliceSidecarSuffix, err)
	}

	count := 0
	for n, slice := range slices {
		title := slice.Title
		if title == "" {
			title = fmt.Sprintf("Track %d", n+1)
		}
		err := sc.put(ctx, &domain.Item{
			ID:    fmt.Sprintf("%s#%d", itemID, n),
			Title: title,
			Source: &domain.MediaSource{
				AbsolutePath: path,
				IsCueTrack:   true,
				CueStart:     time.Duration(slice.StartSeconds * float64(time.Second)),
				CueDuration:  time.Duration(slice.DurationSeconds * float64(time.Second)),
			},
			IndexedAt: time.Now(),
		})
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// itemID converts an absolute path to its library identifier: the
// slash-separated path relative to the library root, rooted at "/".
func (sc *Scanner) itemID(path string) (string, error) {
	rel, err := filepath.Rel(sc.root, path)
	if err != nil {
		return "", fmt.Errorf("path outside library root: %w", err)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}
