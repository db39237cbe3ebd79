// Package metrics provides Prometheus metrics for ports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for ports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Ancestry cache metrics
	CacheHits      prometheus.Counter
	CacheMisses    *prometheus.CounterVec
	AncestryBuilds prometheus.Counter
	BuildDuration  prometheus.Histogram

	// Evidence metrics
	EvidenceUnavailable *prometheus.CounterVec

	// Socket table metrics
	SocketsRead       *prometheus.CounterVec
	SocketRowsSkipped *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ports_ancestry_cache_hits_total",
			Help: "Ancestry lookups answered from the cache",
		},
	)

	m.CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ports_ancestry_cache_misses_total",
			Help: "Ancestry lookups that had to recompute, by reason",
		},
		[]string{"reason"},
	)

	m.AncestryBuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ports_ancestry_builds_total",
			Help: "Ancestry chains walked and classified",
		},
	)

	m.BuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ports_ancestry_build_duration_seconds",
			Help:    "Time spent walking and classifying one ancestry chain",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
	)

	m.EvidenceUnavailable = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ports_evidence_unavailable_total",
			Help: "Evidence collectors that returned no data, by collector",
		},
		[]string{"collector"},
	)

	m.SocketsRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ports_sockets_read_total",
			Help: "Socket records returned by the socket table reader",
		},
		[]string{"protocol", "state"},
	)

	m.SocketRowsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ports_socket_rows_skipped_total",
			Help: "Socket table rows skipped as malformed, by table",
		},
		[]string{"table"},
	)

	m.registry.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.AncestryBuilds,
		m.BuildDuration,
		m.EvidenceUnavailable,
		m.SocketsRead,
		m.SocketRowsSkipped,
	)

	return m
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) CacheMiss(reason string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(reason).Inc()
}

func (m *Metrics) AncestryBuilt(took time.Duration) {
	if m == nil {
		return
	}
	m.AncestryBuilds.Inc()
	m.BuildDuration.Observe(took.Seconds())
}

func (m *Metrics) EvidenceGap(collector string) {
	if m == nil {
		return
	}
	m.EvidenceUnavailable.WithLabelValues(collector).Inc()
}

func (m *Metrics) SocketRead(protocol, state string) {
	if m == nil {
		return
	}
	m.SocketsRead.WithLabelValues(protocol, state).Inc()
}

func (m *Metrics) RowsSkipped(table string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SocketRowsSkipped.WithLabelValues(table).Add(float64(n))
}
