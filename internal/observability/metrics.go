package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Domain counters.
	paymentsProcessed     *prometheus.CounterVec
	commissionFailures    prometheus.Counter
	correlativesExhausted prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "servihogar_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "servihogar_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "servihogar_payments_total",
		Help: "Payment state transitions by operation and outcome.",
	}, []string{"operation", "outcome"})
	commissionFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "servihogar_commission_failures_total",
		Help: "Referral commission postings skipped due to an error. The payment itself still commits.",
	})
	exhausted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "servihogar_correlatives_exhausted_total",
		Help: "Invoice correlatives flipped to EXHAUSTED on allocation.",
	})
	registry.MustRegister(requests, duration, payments, commissionFailures, exhausted)
	return &Metrics{
		registry:              registry,
		handler:               promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:         requests,
		requestDuration:       duration,
		paymentsProcessed:     payments,
		commissionFailures:    commissionFailures,
		correlativesExhausted: exhausted,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
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

// CountPayment records a payment operation outcome ("ok" or "error").
func (m *Metrics) CountPayment(operation, outcome string) {
	if m == nil {
		return
	}
	m.paymentsProcessed.WithLabelValues(operation, outcome).Inc()
}

// CountCommissionFailure records a tolerated commission posting error.
func (m *Metrics) CountCommissionFailure() {
	if m == nil {
		return
	}
	m.commissionFailures.Inc()
}

// CountCorrelativeExhausted records a correlative flipped to EXHAUSTED.
func (m *Metrics) CountCorrelativeExhausted() {
	if m == nil {
		return
	}
	m.correlativesExhausted.Inc()
}

// Registerer exposes the registry for custom metric registration.
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
