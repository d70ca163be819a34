package providers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do/v2"

	"github.com/harmoniaapp/harmonia-server/internal/config"
	"github.com/harmoniaapp/harmonia-server/internal/hls"
	"github.com/harmoniaapp/harmonia-server/internal/library"
	"github.com/harmoniaapp/harmonia-server/internal/logger"
)

const (
	janitorInterval = time.Minute
	// janitorBackoff is the retreat interval after a failed sweep.
	janitorBackoff = 10 * time.Minute
)

// ProvideMetricsRegistry provides the process-wide Prometheus registry.
func ProvideMetricsRegistry(i do.Injector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return reg, nil
}

// ProvideStreamMetrics provides the streaming core's instruments.
func ProvideStreamMetrics(i do.Injector) (*hls.Metrics, error) {
	reg := do.MustInvoke[*prometheus.Registry](i)
	return hls.NewMetrics(reg), nil
}

// ProvideCacheStore provides the segment cache.
func ProvideCacheStore(i do.Injector) (*hls.CacheStore, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	metrics := do.MustInvoke[*hls.Metrics](i)

	return hls.NewCacheStore(cfg.Cache.Root, cfg.Cache.MaxEntries, cfg.Cache.MaxAge, log.Logger, metrics)
}

// RegistryHandle wraps the job registry with shutdown capability.
type RegistryHandle struct {
	*hls.Registry
}

// Shutdown implements do.Shutdownable.
func (h *RegistryHandle) Shutdown() error {
	h.CancelAll()
	return nil
}

// ProvideJobRegistry provides the transcoder job registry.
func ProvideJobRegistry(i do.Injector) (*RegistryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	metrics := do.MustInvoke[*hls.Metrics](i)

	binPath, err := hls.LookupTranscoder(cfg.Transcoder.Path)
	if err != nil {
		return nil, err
	}
	log.Info("using transcoder", "path", binPath)

	runner := hls.NewRunner(binPath, cfg.Job.Timeout, log.Logger)
	return &RegistryHandle{
		Registry: hls.NewRegistry(runner, cfg.Concurrency.MaxJobs, log.Logger, metrics),
	}, nil
}

// ProvideStreamer provides the streaming facade.
func ProvideStreamer(i do.Injector) (*hls.Streamer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	metrics := do.MustInvoke[*hls.Metrics](i)
	cache := do.MustInvoke[*hls.CacheStore](i)
	registryHandle := do.MustInvoke[*RegistryHandle](i)
	libraryService := do.MustInvoke[*library.Service](i)

	probe := hls.NewReadinessProbe(
		cfg.Readiness.MinSegments,
		cfg.Readiness.Timeout,
		cfg.Readiness.Poll,
		cfg.Readiness.Fallback,
		log.Logger,
	)

	basePath := cfg.Server.PathBase + "/rest/hls"

	return hls.NewStreamer(
		libraryService,
		cache,
		registryHandle.Registry,
		probe,
		cfg.Cache.Enabled,
		basePath,
		log.Logger,
		metrics,
	), nil
}

// JanitorHandle wraps the running janitor loop.
type JanitorHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *JanitorHandle) Shutdown() error {
	h.cancel()
	<-h.done
	return nil
}

// ProvideJanitor provides the running cache janitor.
func ProvideJanitor(i do.Injector) (*JanitorHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	cache := do.MustInvoke[*hls.CacheStore](i)

	janitor := hls.NewJanitor(cache, janitorInterval, janitorBackoff, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		janitor.Start(ctx)
	}()

	return &JanitorHandle{cancel: cancel, done: done}, nil
}
