package api

import (
	"net"
	"net/http"
	"strconv"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	"github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/http/response"
)

// defaultBitrateKbps applies when a playlist request omits bitRate.
const defaultBitrateKbps = 128

// handleHLSPlaylist serves the rewritten HLS playlist for an item.
// GET /rest/hls.m3u8?id={itemId}&bitRate={kbps}&audioTrack={tag}
func (s *Server) handleHLSPlaylist(w http.ResponseWriter, r *http.Request) {
	itemID := r.URL.Query().Get("id")
	if itemID == "" {
		response.Fail(w, errors.Validation("id is required"), s.logger)
		return
	}

	bitrate := defaultBitrateKbps
	if raw := r.URL.Query().Get("bitRate"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Fail(w, errors.Validation("bitRate must be a non-negative integer"), s.logger)
			return
		}
		bitrate = parsed
	}

	variant := domain.Variant{
		BitrateKbps: bitrate,
		AudioTrack:  r.URL.Query().Get("audioTrack"),
	}

	playlist, err := s.streamer.GeneratePlaylist(r.Context(), itemID, variant)
	if err != nil {
		response.Fail(w, err, s.logger)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	// The playlist grows while the transcode runs; clients must re-fetch.
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write([]byte(playlist)) //nolint:errcheck // Write errors mean a gone client
}

// handleHLSSegment serves one cached segment file.
// GET /rest/hls?key={pathUnderCacheRoot}
func (s *Server) handleHLSSegment(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		response.Fail(w, errors.Validation("key is required"), s.logger)
		return
	}

	path, mimeType, err := s.streamer.ServeSegment(key)
	if err != nil {
		response.Fail(w, err, s.logger)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	// Segments are immutable once written.
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeFile(w, r, path)
}

// rateLimitPlaylist throttles playlist generation per client IP.
func (s *Server) rateLimitPlaylist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}
		if !s.playlistLimiter.Allow(key) {
			response.Fail(w, errors.RateLimited("too many playlist requests"), s.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}
