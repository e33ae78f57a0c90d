// Package metrics defines the Prometheus metric collectors used across the
// engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	EvaluationMetric     *prometheus.HistogramVec
	RelevantResults      *prometheus.HistogramVec
	CorpusDocuments      prometheus.Gauge
	CorpusVocabulary     prometheus.Gauge
	DatasetFitsTotal     *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
	AnalyticsEventsTotal *prometheus.CounterVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
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
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by mode (text, browse) and outcome (ok, zero_result, error).",
			},
			[]string{"mode", "outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"mode"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		EvaluationMetric: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_evaluation_score",
				Help:    "Per-query pseudo-relevance evaluation metrics (precision_k, recall_k, average_precision).",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"metric", "mode"},
		),
		RelevantResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_relevant_results",
				Help:    "Number of results labelled relevant per query.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
			[]string{"mode"},
		),
		CorpusDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_documents",
				Help: "Number of POI records in the fitted corpus.",
			},
		),
		CorpusVocabulary: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_vocabulary_size",
				Help: "Number of distinct terms in the fitted corpus.",
			},
		),
		DatasetFitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataset_fits_total",
				Help: "Total dataset fit operations by status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
			},
			[]string{"name"},
		),
		AnalyticsEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_events_total",
				Help: "Analytics events by stage (published, dropped, consumed, invalid).",
			},
			[]string{"stage"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EvaluationMetric,
		m.RelevantResults,
		m.CorpusDocuments,
		m.CorpusVocabulary,
		m.DatasetFitsTotal,
		m.CircuitBreakerState,
		m.AnalyticsEventsTotal,
	)

	return m
}

// Handler returns the scrape handler for g, or for the default gatherer
// when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
