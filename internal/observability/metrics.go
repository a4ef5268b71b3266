// Package observability holds the Prometheus collectors of the ledger service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects HTTP and ledger metrics on a private registry.
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	postingsTotal      *prometheus.CounterVec
	enrichmentFailures *prometheus.CounterVec
	bankTransactions   *prometheus.CounterVec
}

// NewMetrics initialises the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_postings_total",
		Help: "Journal posting attempts by reference kind and outcome.",
	}, []string{"reference", "status"})
	enrichment := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_enrichment_failures_total",
		Help: "Side postings skipped after the parent document posted.",
	}, []string{"reference"})
	bank := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_bank_transactions_total",
		Help: "Committed bank statement lines by direction.",
	}, []string{"direction"})
	registry.MustRegister(requests, duration, postings, enrichment, bank,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		postingsTotal:      postings,
		enrichmentFailures: enrichment,
		bankTransactions:   bank,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RecordPosting counts a journal posting attempt.
func (m *Metrics) RecordPosting(reference, status string) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(reference, status).Inc()
}

// RecordEnrichmentFailure counts a skipped side posting.
func (m *Metrics) RecordEnrichmentFailure(reference string) {
	if m == nil {
		return
	}
	m.enrichmentFailures.WithLabelValues(reference).Inc()
}

// RecordBankTransaction counts a committed statement line.
func (m *Metrics) RecordBankTransaction(direction string) {
	if m == nil {
		return
	}
	m.bankTransactions.WithLabelValues(direction).Inc()
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
