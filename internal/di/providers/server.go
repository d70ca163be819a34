package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"

	"github.com/harmoniaapp/harmonia-server/internal/api"
	"github.com/harmoniaapp/harmonia-server/internal/config"
	"github.com/harmoniaapp/harmonia-server/internal/hls"
	"github.com/harmoniaapp/harmonia-server/internal/library"
	"github.com/harmoniaapp/harmonia-server/internal/logger"
)

// HTTPServerHandle wraps the listening HTTP server.
type HTTPServerHandle struct {
	server  *http.Server
	handler *api.Server
	done    chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := h.server.Shutdown(ctx)
	<-h.done
	h.handler.Close()
	return err
}

// ProvideHTTPServer provides the listening HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	streamer := do.MustInvoke[*hls.Streamer](i)
	libraryService := do.MustInvoke[*library.Service](i)
	scanner := do.MustInvoke[*library.Scanner](i)
	searchHandle := do.MustInvoke[*SearchIndexHandle](i)
	registry := do.MustInvoke[*prometheus.Registry](i)

	handler := api.NewServer(
		streamer,
		libraryService,
		scanner,
		searchHandle.Index,
		registry,
		cfg.Server.PathBase,
		log.Logger,
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
		}
	}()

	return &HTTPServerHandle{server: server, handler: handler, done: done}, nil
}
