package api

import (
	"net/http"

	"github.com/harmoniaapp/harmonia-server/internal/http/response"
)

// handleHealthCheck reports liveness.
// GET /health
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]string{"status": "ok"}, s.logger)
}
