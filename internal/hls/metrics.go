package hls

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the Prometheus instruments of the streaming core.
type Metrics struct {
	JobsStarted   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsCancelled prometheus.Counter
	JobsRunning   prometheus.Gauge

	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
}

// NewMetrics registers the core's instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "harmonia_transcode_jobs_started_total",
			Help: "Transcoder processes spawned.",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "harmonia_transcode_jobs_completed_total",
			Help: "Transcoder processes that exited cleanly.",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "harmonia_transcode_jobs_failed_total",
			Help: "Transcoder processes that exited with an error or timed out.",
		}),
		JobsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "harmonia_transcode_jobs_cancelled_total",
			Help: "Transcoder processes cancelled by preemption, eviction, or shutdown.",
		}),
		JobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "harmonia_transcode_jobs_running",
			Help: "Transcoder processes currently running.",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "harmonia_hls_cache_hits_total",
			Help: "Playlist requests served from a complete cache entry.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "harmonia_hls_cache_misses_total",
			Help: "Playlist requests that required a transcoder spawn or reuse.",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "harmonia_hls_cache_evictions_total",
			Help: "Cache entries evicted by capacity, TTL, or invalidation.",
		}),
	}
}

// NopMetrics returns metrics bound to a throwaway registry, for tests
// and for callers that do not export metrics.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
