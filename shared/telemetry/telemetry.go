package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	metricSDK "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	traceSDK "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Namespace prefixes every metric the services record.
const Namespace = "neocommerce"

const (
	shutdownTimeout    = 5 * time.Second
	otlpExportInterval = 30 * time.Second
)

// Config holds telemetry configuration for a service
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
}

// Telemetry is the tracer and meter of one service. It travels in the
// context so use cases record spans and metrics without holding a reference.
type Telemetry struct {
	tracer  trace.Tracer
	meter   metric.Meter
	service string

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

func NewTelemetry(config Config) *Telemetry {
	return &Telemetry{
		tracer:     otel.Tracer(config.ServiceName),
		meter:      otel.Meter(config.ServiceName),
		service:    config.ServiceName,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// fallback serves contexts that carry no Telemetry, such as unit tests.
var fallback = NewTelemetry(Config{ServiceName: "unknown"})

// InitTelemetry installs the global providers. Metrics are always exposed
// through the Prometheus exporter; traces and OTLP metrics are exported only
// when an OTLP endpoint is configured.
func InitTelemetry(ctx context.Context, config Config) (*Telemetry, func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	var shutdowns []func(context.Context) error
	if config.OTLPEndpoint != "" {
		traceProvider, err := newTraceProvider(ctx, res, config.OTLPEndpoint)
		if err != nil {
			return nil, nil, err
		}
		otel.SetTracerProvider(traceProvider)
		shutdowns = append(shutdowns, traceProvider.Shutdown)
	}

	meterProvider, err := newMeterProvider(ctx, res, config.OTLPEndpoint)
	if err != nil {
		shutdownAll(shutdowns)
		return nil, nil, err
	}
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	shutdowns = append(shutdowns, meterProvider.Shutdown)

	return NewTelemetry(config), func() { shutdownAll(shutdowns) }, nil
}

// shutdownAll flushes the providers, most recently started first.
func shutdownAll(shutdowns []func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(shutdowns) - 1; i >= 0; i-- {
		_ = shutdowns[i](ctx)
	}
}

func newTraceProvider(ctx context.Context, res *resource.Resource, endpoint string) (*traceSDK.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	return traceSDK.NewTracerProvider(
		traceSDK.WithBatcher(exporter),
		traceSDK.WithResource(res),
		traceSDK.WithSampler(traceSDK.AlwaysSample()),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, endpoint string) (*metricSDK.MeterProvider, error) {
	prometheusExporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	opts := []metricSDK.Option{
		metricSDK.WithResource(res),
		metricSDK.WithReader(prometheusExporter),
	}

	if endpoint != "" {
		otlpExporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, metricSDK.WithReader(
			metricSDK.NewPeriodicReader(otlpExporter, metricSDK.WithInterval(otlpExportInterval)),
		))
	}

	return metricSDK.NewMeterProvider(opts...), nil
}

func (t *Telemetry) counter(name, description string) (metric.Int64Counter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.counters[name]; ok {
		return c, nil
	}
	c, err := t.meter.Int64Counter(MetricName(name), metric.WithDescription(description))
	if err != nil {
		return nil, err
	}
	t.counters[name] = c
	return c, nil
}

func (t *Telemetry) histogram(name, description string) (metric.Float64Histogram, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.histograms[name]; ok {
		return h, nil
	}
	h, err := t.meter.Float64Histogram(MetricName(name), metric.WithDescription(description))
	if err != nil {
		return nil, err
	}
	t.histograms[name] = h
	return h, nil
}

// MetricName is the exported name of a metric.
func MetricName(name string) string {
	return Namespace + "_" + name
}

type contextKey string

const telemetryKey contextKey = "telemetry"

// WithTelemetry injects telemetry into context
func WithTelemetry(ctx context.Context, tel *Telemetry) context.Context {
	return context.WithValue(ctx, telemetryKey, tel)
}

// FromContext extracts telemetry from context
func FromContext(ctx context.Context) *Telemetry {
	if tel, ok := ctx.Value(telemetryKey).(*Telemetry); ok {
		return tel
	}
	return nil
}

func fromContextOrFallback(ctx context.Context) *Telemetry {
	if tel := FromContext(ctx); tel != nil {
		return tel
	}
	return fallback
}

// StartSpan starts a span on the service's tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return fromContextOrFallback(ctx).tracer.Start(ctx, name, opts...)
}

// RecordCounter adds value to a counter labelled with the service name.
func RecordCounter(ctx context.Context, name, description string, value int64, attrs ...attribute.KeyValue) {
	tel := fromContextOrFallback(ctx)
	counter, err := tel.counter(name, description)
	if err != nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(append(attrs, attribute.String("service", tel.service))...))
}

// RecordHistogram records one observation labelled with the service name.
func RecordHistogram(ctx context.Context, name, description string, value float64, attrs ...attribute.KeyValue) {
	tel := fromContextOrFallback(ctx)
	histogram, err := tel.histogram(name, description)
	if err != nil {
		return
	}
	histogram.Record(ctx, value, metric.WithAttributes(append(attrs, attribute.String("service", tel.service))...))
}
