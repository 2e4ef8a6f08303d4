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
}

// NewMetrics initializes the registry and the base HTTP metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rentabill_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rentabill_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	registry.MustRegister(requests, duration)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
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

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// EngineMetrics counts invoice engine outcomes. A nil receiver is a no-op
// so the resolver can run without a registry in tests.
type EngineMetrics struct {
	resolved     *prometheus.CounterVec
	allocRetries prometheus.Counter
}

// NewEngineMetrics registers the invoice engine counters.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	resolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rentabill_invoices_resolved_total",
		Help: "Resolved billing requests by outcome.",
	}, []string{"outcome"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rentabill_invoice_number_allocation_retries_total",
		Help: "Retries of the invoice number allocation transaction.",
	})
	reg.MustRegister(resolved, retries)
	return &EngineMetrics{resolved: resolved, allocRetries: retries}
}

// InvoiceCreated counts a newly created draft.
func (m *EngineMetrics) InvoiceCreated() {
	if m != nil {
		m.resolved.WithLabelValues("created").Inc()
	}
}

// InvoiceRegenerated counts a regenerated draft.
func (m *EngineMetrics) InvoiceRegenerated() {
	if m != nil {
		m.resolved.WithLabelValues("regenerated").Inc()
	}
}

// InvoiceFresh counts a draft served without regeneration.
func (m *EngineMetrics) InvoiceFresh() {
	if m != nil {
		m.resolved.WithLabelValues("fresh").Inc()
	}
}

// AllocationRetry counts one allocation conflict retry.
func (m *EngineMetrics) AllocationRetry() {
	if m != nil {
		m.allocRetries.Inc()
	}
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
