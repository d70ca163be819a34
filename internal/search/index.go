// Package search provides full-text search over library items using Bleve.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
)

// Document is the indexed form of a library item.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	IsDir bool   `json:"is_dir"`
}

// Hit is one search result.
type Hit struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Index wraps a Bleve index of library items.
// All public methods are safe for concurrent use.
type Index struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewIndex creates or opens the search index under dataPath. A corrupt
// existing index is removed and recreated.
func NewIndex(dataPath string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	indexPath := filepath.Join(dataPath, "search.bleve")

	var index bleve.Index
	var err error

	if _, statErr := os.Stat(indexPath); statErr == nil {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open existing search index, recreating",
				"path", indexPath, "error", err)
			if removeErr := os.RemoveAll(indexPath); removeErr != nil {
				return nil, fmt.Errorf("remove corrupted index: %w", removeErr)
			}
			index = nil
		}
	}

	if index == nil {
		index, err = bleve.New(indexPath, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("create search index: %w", err)
		}
		logger.Info("created search index", "path", indexPath)
	}

	return &Index{index: index, path: indexPath, logger: logger}, nil
}

func buildMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	titleField := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt("title", titleField)

	idField := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("id", idField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = docMapping
	return m
}

// Close releases the index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}

// IndexItem adds or updates a library item.
func (i *Index) IndexItem(item *domain.Item) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.Index(item.ID, Document{
		ID:    item.ID,
		Title: item.Title,
		IsDir: item.IsDir,
	})
}

// DeleteItem removes an item from the index.
func (i *Index) DeleteItem(itemID string) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.Delete(itemID)
}

// Search runs a fuzzy match query over item titles.
func (i *Index) Search(ctx context.Context, queryText string, limit int) ([]Hit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	match := bleve.NewMatchQuery(queryText)
	match.SetField("title")
	match.SetFuzziness(1)

	req := bleve.NewSearchRequestOptions(match, limit, 0, false)
	req.Fields = []string{"title"}

	result, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		title, _ := hit.Fields["title"].(string)
		hits = append(hits, Hit{
			ID:    hit.ID,
			Title: title,
			Score: hit.Score,
		})
	}
	return hits, nil
}
