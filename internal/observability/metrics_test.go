package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "rentabill_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "rentabill_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestEngineMetricsCountOutcomes(t *testing.T) {
	metrics := NewMetrics()
	engine := NewEngineMetrics(metrics.Registerer())

	engine.InvoiceCreated()
	engine.InvoiceRegenerated()
	engine.InvoiceRegenerated()
	engine.InvoiceFresh()
	engine.AllocationRetry()

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()

	for _, want := range []string{
		"rentabill_invoices_resolved_total{outcome=\"created\"} 1",
		"rentabill_invoices_resolved_total{outcome=\"regenerated\"} 2",
		"rentabill_invoices_resolved_total{outcome=\"fresh\"} 1",
		"rentabill_invoice_number_allocation_retries_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q, got: %s", want, body)
		}
	}
}

func TestEngineMetricsNilReceiverIsNoop(t *testing.T) {
	var engine *EngineMetrics
	engine.InvoiceCreated()
	engine.InvoiceRegenerated()
	engine.InvoiceFresh()
	engine.AllocationRetry()
}
