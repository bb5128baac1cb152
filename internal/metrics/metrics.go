// Package metrics provides Prometheus metrics for the trade data service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trade_data"

// Metrics holds the collectors updated by ingestion, duplicate cleanup and
// the HTTP layer. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	RowsProcessed     *prometheus.CounterVec
	BatchesProcessed  *prometheus.CounterVec
	IngestDuration    *prometheus.HistogramVec
	IngestionsRunning prometheus.Gauge

	// Duplicates
	DuplicatesRemoved prometheus.Counter
	DedupeErrors      *prometheus.CounterVec

	// HTTP
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RowsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_rows_total",
				Help:      "Spreadsheet rows read, by outcome (inserted, rejected reason, failed)",
			},
			[]string{"outcome"},
		),
		BatchesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_batches_total",
				Help:      "Batches loaded, by status",
			},
			[]string{"status"},
		),
		IngestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_duration_seconds",
				Help:      "Wall time of one ingestion call",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
			[]string{"result"},
		),
		IngestionsRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ingestions_running",
				Help:      "Ingestion calls currently in progress",
			},
		),
		DuplicatesRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicates_removed_total",
				Help:      "Duplicate trade records deleted",
			},
		),
		DedupeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedupe_errors_total",
				Help:      "Failed duplicate statistics or removal operations",
			},
			[]string{"operation"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AddRows counts n rows with the given outcome.
func (m *Metrics) AddRows(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsProcessed.WithLabelValues(outcome).Add(float64(n))
}

// ObserveBatch counts one loaded batch.
func (m *Metrics) ObserveBatch(ok bool) {
	if m == nil {
		return
	}
	status := "committed"
	if !ok {
		status = "failed"
	}
	m.BatchesProcessed.WithLabelValues(status).Inc()
}

// IngestStarted marks an ingestion as running and returns a function that
// records its duration when called.
func (m *Metrics) IngestStarted() func(success bool) {
	if m == nil {
		return func(bool) {}
	}
	start := time.Now()
	m.IngestionsRunning.Inc()
	return func(success bool) {
		m.IngestionsRunning.Dec()
		result := "success"
		if !success {
			result = "failure"
		}
		m.IngestDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
}

// ObserveDuplicatesRemoved counts deleted duplicates.
func (m *Metrics) ObserveDuplicatesRemoved(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.DuplicatesRemoved.Add(float64(n))
}

// ObserveDedupeError counts a failed dedupe operation ("stats" or "remove").
func (m *Metrics) ObserveDedupeError(operation string) {
	if m == nil {
		return
	}
	m.DedupeErrors.WithLabelValues(operation).Inc()
}

// ObserveRequest records the latency of one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
