// Package response writes the API's JSON bodies. Handlers have exactly
// two outcomes - a payload, or a domain error - so the package exposes
// OK and Fail rather than a helper per status code; the HTTP status
// and the machine-readable code both come from the error taxonomy.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/harmoniaapp/harmonia-server/internal/errors"
)

// Body is the wire envelope for JSON endpoints.
type Body struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// OK writes a 200 response carrying data.
func OK(w http.ResponseWriter, data any, logger *slog.Logger) {
	write(w, http.StatusOK, Body{Success: true, Data: data}, logger)
}

// Fail maps err onto its HTTP status and error code. Errors outside
// the taxonomy become an opaque 500 so internals never leak; the
// original is logged for the operator.
func Fail(w http.ResponseWriter, err error, logger *slog.Logger) {
	var domainErr *errors.Error
	if !errors.As(err, &domainErr) {
		if logger != nil {
			logger.Error("unhandled error in request", "error", err)
		}
		domainErr = errors.ErrInternal
	}

	write(w, domainErr.HTTPStatus(), Body{
		Success: false,
		Error: &errorBody{
			Code:    domainErr.Code,
			Message: domainErr.Message,
		},
	}, logger)
}

func write(w http.ResponseWriter, status int, body Body, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		if logger != nil {
			logger.Error("failed to encode response body", "error", err)
		}
	}
}
