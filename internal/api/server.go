// Package api provides the HTTP server and handlers for the Harmonia application.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harmoniaapp/harmonia-server/internal/hls"
	"github.com/harmoniaapp/harmonia-server/internal/library"
	"github.com/harmoniaapp/harmonia-server/internal/ratelimit"
	"github.com/harmoniaapp/harmonia-server/internal/search"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	streamer *hls.Streamer
	library  *library.Service
	scanner  *library.Scanner
	search   *search.Index
	router   *chi.Mux
	logger   *slog.Logger

	// playlistLimiter throttles playlist generation per client IP;
	// each generate can pin a transcoder for seconds.
	playlistLimiter *ratelimit.KeyedRateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
// pathBase prefixes every route when the server sits behind a proxy
// that strips a subpath.
func NewServer(
	streamer *hls.Streamer,
	libraryService *library.Service,
	scanner *library.Scanner,
	searchIndex *search.Index,
	gatherer prometheus.Gatherer,
	pathBase string,
	logger *slog.Logger,
) *Server {
	s := &Server{
		streamer: streamer,
		library:  libraryService,
		scanner:  scanner,
		search:   searchIndex,
		router:   chi.NewRouter(),
		logger:   logger,
		// 5 playlist generations per second with a burst of 10 is far
		// beyond what a well-behaved player needs.
		playlistLimiter: ratelimit.New(5, 10),
	}

	s.setupMiddleware()
	s.setupRoutes(gatherer, pathBase)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases handler-owned resources.
func (s *Server) Close() {
	s.playlistLimiter.Stop()
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	// CORS middleware - permissive defaults for self-hosted deployments.
	// Users can restrict origins by placing a reverse proxy in front.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Range"},
		ExposedHeaders: []string{"Content-Length", "Content-Range"},
		MaxAge:         300,
	}))

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	// Compress playlists and JSON only. TS segments carry AAC payloads
	// that gzip cannot shrink, and players range-request them.
	s.router.Use(middleware.Compress(5,
		"application/json",
		"application/vnd.apple.mpegurl",
	))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(gatherer prometheus.Gatherer, pathBase string) {
	mount := func(r chi.Router) {
		r.Get("/health", s.handleHealthCheck)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

		r.Route("/rest", func(r chi.Router) {
			r.With(s.rateLimitPlaylist).Get("/hls.m3u8", s.handleHLSPlaylist)
			r.Get("/hls", s.handleHLSSegment)
			r.Get("/browse", s.handleBrowse)
			r.Get("/search", s.handleSearch)
			r.Post("/scan", s.handleScan)
		})
	}

	if pathBase != "" {
		s.router.Route(pathBase, mount)
		return
	}
	mount(s.router)
}
