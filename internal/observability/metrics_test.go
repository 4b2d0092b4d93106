package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsEndpointExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.CountPayment("process", "ok")
	m.CountCommissionFailure()
	m.CountCorrelativeExhausted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "servihogar_payments_total")
	require.Contains(t, string(body), "servihogar_commission_failures_total")
	require.Contains(t, string(body), "servihogar_correlatives_exhausted_total")
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewMetrics()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "servihogar_http_requests_total")
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.CountPayment("process", "ok")
	m.CountCommissionFailure()
	m.CountCorrelativeExhausted()
}
