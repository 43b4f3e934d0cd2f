// Package metrics exposes Prometheus instrumentation for the caches.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seenimoa/yausma/internal/infra"
)

const namespace = "yausma"

// CacheMetrics records cache events. It implements infra.Observer.
type CacheMetrics struct {
	registry *prometheus.Registry

	hits     *prometheus.CounterVec
	misses   *prometheus.CounterVec
	shared   *prometheus.CounterVec
	fetches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ infra.Observer = (*CacheMetrics)(nil)

// New creates cache metrics on a dedicated registry that also carries the
// Go runtime and process collectors.
func New() *CacheMetrics {
	m := &CacheMetrics{
		registry: prometheus.NewRegistry(),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Lookups served from a fresh cache entry.",
		}, []string{"cache"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Lookups that found no fresh entry.",
		}, []string{"cache"}),
		shared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "shared_total",
			Help:      "Lookups that joined a fetch already in flight.",
		}, []string{"cache"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetches_total",
			Help:      "Upstream fetches by outcome.",
		}, []string{"cache", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"cache"}),
	}

	m.registry.MustRegister(
		m.hits, m.misses, m.shared, m.fetches, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *CacheMetrics) Hit(cache string)    { m.hits.WithLabelValues(cache).Inc() }
func (m *CacheMetrics) Miss(cache string)   { m.misses.WithLabelValues(cache).Inc() }
func (m *CacheMetrics) Shared(cache string) { m.shared.WithLabelValues(cache).Inc() }

func (m *CacheMetrics) Fetch(cache string, took time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.fetches.WithLabelValues(cache, outcome).Inc()
	m.duration.WithLabelValues(cache).Observe(took.Seconds())
}

// Registry returns the underlying registry.
func (m *CacheMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *CacheMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
