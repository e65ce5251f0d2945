package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments shared by every domain cache,
// labeled by cache name.
type Metrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	negatives *prometheus.CounterVec
	evictions *prometheus.CounterVec
	entries   *prometheus.GaugeVec
}

// NewMetrics creates and registers the cache metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curio",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}, []string{"cache"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curio",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		}, []string{"cache"}),
		negatives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curio",
			Subsystem: "cache",
			Name:      "negative_hits_total",
			Help:      "Total number of lookups answered by a remembered negative",
		}, []string{"cache"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curio",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of entries evicted by the LRU policy",
		}, []string{"cache"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "curio",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Resident identity-map entries, negatives included",
		}, []string{"cache"}),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.negatives, m.evictions, m.entries)
	}
	return m
}

// forCache curries the instruments for one named cache. A nil receiver
// yields nil, and every instrumented method is nil-safe.
func (m *Metrics) forCache(name string) *cacheMetrics {
	if m == nil {
		return nil
	}
	return &cacheMetrics{
		hits:      m.hits.WithLabelValues(name),
		misses:    m.misses.WithLabelValues(name),
		negatives: m.negatives.WithLabelValues(name),
		evictions: m.evictions.WithLabelValues(name),
		entries:   m.entries.WithLabelValues(name),
	}
}

type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	negatives prometheus.Counter
	evictions prometheus.Counter
	entries   prometheus.Gauge
}

func (m *cacheMetrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *cacheMetrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *cacheMetrics) negativeHit() {
	if m != nil {
		m.negatives.Inc()
	}
}

func (m *cacheMetrics) eviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *cacheMetrics) setEntries(n int) {
	if m != nil {
		m.entries.Set(float64(n))
	}
}
