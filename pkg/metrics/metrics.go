// Package metrics defines the Prometheus collectors used by the index, the
// cache and the HTTP surface, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DocsIndexedTotal     prometheus.Counter
	DocsSkippedTotal     *prometheus.CounterVec
	IndexedDocuments     prometheus.Gauge
	IndexingDuration     prometheus.Histogram
	SimilarityQueries    *prometheus.CounterVec
	SimilarityLatency    prometheus.Histogram
	CandidatesCount      *prometheus.HistogramVec
	PairCacheHitsTotal   prometheus.Counter
	PairCacheMissesTotal prometheus.Counter
	CacheOperations      *prometheus.CounterVec
	CacheDuration        *prometheus.HistogramVec
	EventsConsumedTotal  *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "simindex_docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		DocsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simindex_docs_skipped_total",
				Help: "Documents skipped during indexing by reason.",
			},
			[]string{"reason"},
		),
		IndexedDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "simindex_indexed_documents",
				Help: "Number of documents currently in the index.",
			},
		),
		IndexingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "simindex_indexing_duration_seconds",
				Help:    "Duration of full initialize or reindex runs.",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
			},
		),
		SimilarityQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simindex_similarity_queries_total",
				Help: "Related-document queries by candidate strategy (explicit, smart, full).",
			},
			[]string{"strategy"},
		),
		SimilarityLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "simindex_similarity_latency_seconds",
				Help:    "Related-document query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		CandidatesCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simindex_candidates_count",
				Help:    "Number of candidates scored per query.",
				Buckets: []float64{0, 1, 10, 50, 100, 200, 500, 1000, 5000},
			},
			[]string{"strategy"},
		),
		PairCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "simindex_pair_cache_hits_total",
				Help: "Total pair-similarity cache hits.",
			},
		),
		PairCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "simindex_pair_cache_misses_total",
				Help: "Total pair-similarity cache misses.",
			},
		),
		CacheOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simindex_cache_operations_total",
				Help: "Persistent cache operations by type and status.",
			},
			[]string{"op", "status"},
		),
		CacheDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simindex_cache_duration_seconds",
				Help:    "Persistent cache load and save latency.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"op"},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simindex_events_consumed_total",
				Help: "Document change events consumed by operation and status.",
			},
			[]string{"op", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.HTTPRequestsInFlight,
			m.DocsIndexedTotal,
			m.DocsSkippedTotal,
			m.IndexedDocuments,
			m.IndexingDuration,
			m.SimilarityQueries,
			m.SimilarityLatency,
			m.CandidatesCount,
			m.PairCacheHitsTotal,
			m.PairCacheMissesTotal,
			m.CacheOperations,
			m.CacheDuration,
			m.EventsConsumedTotal,
			m.CircuitBreakerState,
		)
	}

	return m
}

// Handler returns the scrape handler for g, or the default gatherer when g
// is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
