package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/payments/{id}")
	req := httptest.NewRequest(http.MethodGet, "/api/payments/4", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_http_requests_total{code="418",route="/api/payments/{id}"} 1`)
	require.Contains(t, body, `odyssey_http_request_duration_seconds_bucket{route="/api/payments/{id}"`)
}

func TestLedgerCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordPosting("sales_invoice", "posted")
	metrics.RecordPosting("sales_invoice", "posted")
	metrics.RecordPosting("adjustment", "rejected")
	metrics.RecordEnrichmentFailure("pos_sale")
	metrics.RecordBankTransaction("debit")

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.postingsTotal.WithLabelValues("sales_invoice", "posted")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.postingsTotal.WithLabelValues("adjustment", "rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.enrichmentFailures.WithLabelValues("pos_sale")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.bankTransactions.WithLabelValues("debit")))

	body := scrape(t, metrics)
	for _, name := range []string{"odyssey_ledger_postings_total", "odyssey_ledger_enrichment_failures_total", "odyssey_bank_transactions_total", "go_goroutines"} {
		require.True(t, strings.Contains(body, name), name)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordPosting("adjustment", "posted")
	metrics.RecordEnrichmentFailure("adjustment")
	metrics.RecordBankTransaction("credit")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	require.NotNil(t, metrics.Middleware(next))
}
