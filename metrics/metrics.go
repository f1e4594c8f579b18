// Package metrics bundles the Prometheus collectors of a sync run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for fetching, upserts and the cache.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	FetchCacheHits  prometheus.Counter
	RecordsTotal    *prometheus.CounterVec
	ThumbsTotal     *prometheus.CounterVec
	SweptTotal      *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksync_fetch_requests_total",
			Help: "Total HTTP requests issued for feeds and images.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stocksync_fetch_duration_seconds",
			Help:    "HTTP request latency for fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stocksync_fetch_retries_total",
			Help: "Total number of fetch retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksync_fetch_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stocksync_fetch_cache_hits_total",
			Help: "Fetches served from the in-memory body cache.",
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksync_records_total",
			Help: "Feed records processed by outcome.",
		},
		[]string{"outcome"},
	)
	thumbs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksync_thumbnails_total",
			Help: "Thumbnail slots by result (generated, hit, failed).",
		},
		[]string{"result"},
	)
	swept := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksync_sweep_files_total",
			Help: "Cache files examined by the sweep by action.",
		},
		[]string{"action"},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, cacheHits, records, thumbs, swept)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		FetchCacheHits:  cacheHits,
		RecordsTotal:    records,
		ThumbsTotal:     thumbs,
		SweptTotal:      swept,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCacheHit increments the fetch cache hit counter.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.FetchCacheHits.Inc()
}

// IncRecord counts one upsert outcome.
func (m *Metrics) IncRecord(outcome string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(outcome).Inc()
}

// IncThumb counts one thumbnail slot result.
func (m *Metrics) IncThumb(result string) {
	if m == nil {
		return
	}
	m.ThumbsTotal.WithLabelValues(result).Inc()
}

// IncSwept counts one sweep action (deleted, kept, error).
func (m *Metrics) IncSwept(action string) {
	if m == nil {
		return
	}
	m.SweptTotal.WithLabelValues(action).Inc()
}
