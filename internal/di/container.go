// Package di provides dependency injection configuration for the Harmonia server.
package di

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"

	"github.com/harmoniaapp/harmonia-server/internal/config"
	"github.com/harmoniaapp/harmonia-server/internal/di/providers"
	"github.com/harmoniaapp/harmonia-server/internal/hls"
	"github.com/harmoniaapp/harmonia-server/internal/library"
	"github.com/harmoniaapp/harmonia-server/internal/logger"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetricsRegistry)
	do.Provide(injector, providers.ProvideStreamMetrics)

	// Library index
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideLibraryService)
	do.Provide(injector, providers.ProvideScanner)
	do.Provide(injector, providers.ProvideWatcher)

	// Streaming core
	do.Provide(injector, providers.ProvideCacheStore)
	do.Provide(injector, providers.ProvideJobRegistry)
	do.Provide(injector, providers.ProvideStreamer)
	do.Provide(injector, providers.ProvideJanitor)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services in dependency order and returns
// once the HTTP server's listen goroutine has been started; it does not
// wait for the listener to bind.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*prometheus.Registry](injector)
	_ = do.MustInvoke[*hls.Metrics](injector)

	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*library.Service](injector)
	_ = do.MustInvoke[*library.Scanner](injector)
	_ = do.MustInvoke[*providers.WatcherHandle](injector)

	_ = do.MustInvoke[*hls.CacheStore](injector)
	_ = do.MustInvoke[*providers.RegistryHandle](injector)
	_ = do.MustInvoke[*hls.Streamer](injector)
	_ = do.MustInvoke[*providers.JanitorHandle](injector)

	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
