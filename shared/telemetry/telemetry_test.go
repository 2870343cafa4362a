package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.Same(t, fallback, fromContextOrFallback(context.Background()))

	tel := NewTelemetry(NewConfig("order-service"))
	ctx := WithTelemetry(context.Background(), tel)

	assert.Same(t, tel, FromContext(ctx))
	assert.Same(t, tel, fromContextOrFallback(ctx))
}

func TestRecordCounter_ReusesInstruments(t *testing.T) {
	tel := NewTelemetry(NewConfig("payment-service"))
	ctx := WithTelemetry(context.Background(), tel)

	RecordCounter(ctx, "payments_initiated_total", "Payments initiated", 1)
	RecordCounter(ctx, "payments_initiated_total", "Payments initiated", 1)
	RecordHistogram(ctx, "payment_processor_duration_seconds", "Processor call duration", 0.2)

	assert.Len(t, tel.counters, 1)
	assert.Len(t, tel.histograms, 1)
	assert.Equal(t, "neocommerce_payments_initiated_total", MetricName("payments_initiated_total"))
}

func TestMiddleware_PropagatesTelemetryAndStatus(t *testing.T) {
	tel := NewTelemetry(NewConfig("inventory-service"))
	var seen *Telemetry

	r := chi.NewRouter()
	r.Use(Middleware(tel))
	r.Get("/api/inventory/{productId}", func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/inventory/P1", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Same(t, tel, seen)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "4xx", statusClass(409))
	assert.Equal(t, "5xx", statusClass(503))
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("payment-service")
	assert.Equal(t, "1.0.0", cfg.ServiceVersion)
	assert.Empty(t, cfg.OTLPEndpoint)

	cfg = cfg.WithVersion("").WithOTLPEndpoint("otel:4318")
	assert.Equal(t, "1.0.0", cfg.ServiceVersion)
	assert.Equal(t, "otel:4318", cfg.OTLPEndpoint)
	assert.Equal(t, "2.1.0", cfg.WithVersion("2.1.0").ServiceVersion)
}
