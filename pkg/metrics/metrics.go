// Package metrics defines the Prometheus metric collectors used across the
// ingestion, indexing, and search services, and exposes an HTTP handler for
// scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the services.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	DocumentsUploadedTotal prometheus.Counter
	MapAppendsTotal        *prometheus.CounterVec
	ShardBuildsTotal       *prometheus.CounterVec
	ShardBuildDuration     prometheus.Histogram
	ShardDocuments         *prometheus.GaugeVec

	TermLookupsTotal  *prometheus.CounterVec
	QueryLatency      *prometheus.HistogramVec
	QueryShards       prometheus.Histogram
	ShardSkipsTotal   prometheus.Counter
	CacheHitsTotal    prometheus.Counter
	CacheMissesTotal  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
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
		DocumentsUploadedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_uploaded_total",
				Help: "Total documents accepted by the upload endpoint.",
			},
		),
		MapAppendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_map_appends_total",
				Help: "Document-map append operations by status.",
			},
			[]string{"status"},
		),
		ShardBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_builds_total",
				Help: "Shard index builds by status (success, error).",
			},
			[]string{"status"},
		),
		ShardBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shard_build_duration_seconds",
				Help:    "Wall-clock duration of full shard builds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
		),
		ShardDocuments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_document_count",
				Help: "Number of documents per month shard.",
			},
			[]string{"shard"},
		),
		TermLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "term_lookups_total",
				Help: "Dictionary term lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "federated_query_latency_seconds",
				Help:    "Federated query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		QueryShards: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "federated_query_shards",
				Help:    "Number of month shards covered per federated query.",
				Buckets: []float64{1, 2, 3, 6, 12, 24, 60},
			},
		),
		ShardSkipsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "federated_shard_skips_total",
				Help: "Shard lookups skipped due to malformed or unreadable files.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query-cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query-cache misses.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocumentsUploadedTotal,
		m.MapAppendsTotal,
		m.ShardBuildsTotal,
		m.ShardBuildDuration,
		m.ShardDocuments,
		m.TermLookupsTotal,
		m.QueryLatency,
		m.QueryShards,
		m.ShardSkipsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
