package api

import (
	"net/http"
	"strconv"

	"github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/http/response"
)

// browseEntry is the wire shape of one directory listing row.
type browseEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	IsDir bool   `json:"is_dir"`
}

// handleBrowse lists the children of a library directory.
// GET /rest/browse?path=/Artist/Album
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	items, err := s.library.Children(r.Context(), path)
	if err != nil {
		response.Fail(w, err, s.logger)
		return
	}

	entries := make([]browseEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, browseEntry{
			ID:    item.ID,
			Title: item.Title,
			IsDir: item.IsDir,
		})
	}
	response.OK(w, entries, s.logger)
}

// handleSearch runs a full-text query over item titles.
// GET /rest/search?q=...&limit=20
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		response.Fail(w, errors.Validation("q is required"), s.logger)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	hits, err := s.search.Search(r.Context(), query, limit)
	if err != nil {
		response.Fail(w, err, s.logger)
		return
	}
	response.OK(w, hits, s.logger)
}

// handleScan triggers a full library re-walk.
// POST /rest/scan
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	count, err := s.scanner.Scan(r.Context())
	if err != nil {
		response.Fail(w, err, s.logger)
		return
	}
	response.OK(w, map[string]int{"indexed": count}, s.logger)
}
