// Package metrics exposes Prometheus collectors for the resolver, the proxy
// and the media cache. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidgate/internal/cache"
)

const namespace = "vidgate"

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	resolveTotal   *prometheus.CounterVec
	proxyRequests  *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
	proxyBytes     prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_total",
			Help:      "Resolve calls by outcome.",
		}, []string{"outcome"}),
		proxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Proxied responses by content kind and cache disposition.",
		}, []string{"kind", "cache"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_upstream_errors_total",
			Help:      "Proxy failures by error kind.",
		}, []string{"kind"}),
		proxyBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_bytes_total",
			Help:      "Body bytes written to proxy clients.",
		}),
	}
	m.registry.MustRegister(
		m.resolveTotal,
		m.proxyRequests,
		m.upstreamErrors,
		m.proxyBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveResolve counts one resolve call.
func (m *Metrics) ObserveResolve(outcome string) {
	if m == nil {
		return
	}
	m.resolveTotal.WithLabelValues(outcome).Inc()
}

// ObserveProxy counts one proxied response.
func (m *Metrics) ObserveProxy(kind, cacheState string, bytes int64) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(kind, cacheState).Inc()
	if bytes > 0 {
		m.proxyBytes.Add(float64(bytes))
	}
}

// ObserveUpstreamError counts one proxy failure.
func (m *Metrics) ObserveUpstreamError(kind string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(kind).Inc()
}

// WatchCache exports cache occupancy and counters read from stats on each
// scrape.
func (m *Metrics) WatchCache(stats func() cache.Stats) {
	if m == nil || stats == nil {
		return
	}
	gauge := func(name, help string, read func(cache.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: name, Help: help,
		}, func() float64 { return read(stats()) })
	}
	counter := func(name, help string, read func(cache.Stats) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: name, Help: help,
		}, func() float64 { return read(stats()) })
	}
	m.registry.MustRegister(
		gauge("entries", "Live cache entries.", func(s cache.Stats) float64 { return float64(s.Entries) }),
		gauge("bytes", "Bytes held by the cache.", func(s cache.Stats) float64 { return float64(s.TotalSize) }),
		gauge("max_bytes", "Configured cache budget.", func(s cache.Stats) float64 { return float64(s.MaxSize) }),
		counter("hits_total", "Cache hits.", func(s cache.Stats) float64 { return float64(s.Hits) }),
		counter("misses_total", "Cache misses.", func(s cache.Stats) float64 { return float64(s.Misses) }),
		counter("evictions_total", "Entries evicted for space.", func(s cache.Stats) float64 { return float64(s.Evictions) }),
		counter("expired_total", "Entries dropped by TTL or URL expiry.", func(s cache.Stats) float64 { return float64(s.Expired) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
