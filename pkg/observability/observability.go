// Package observability provides OpenTelemetry tracing and RED
// (Rate, Errors, Duration) metrics for the wallet core. The
// dispatcher records one span and one metric sample per handled
// request; everything exports over OTLP gRPC when enabled.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures the telemetry providers.
type Config struct {
	ServiceName  string
	OTLPEndpoint string // e.g. "localhost:4317"
	Enabled      bool
}

// DefaultConfig returns local-development defaults with telemetry
// disabled; the daemon flips Enabled from its environment.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:  "aegis-wallet-core",
		OTLPEndpoint: "localhost:4317",
		Enabled:      false,
	}
}

// Provider owns the tracer/meter providers and the request metrics.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer

	requestCounter metric.Int64Counter
	errorCounter   metric.Int64Counter
	durationHist   metric.Float64Histogram
}

// New creates a provider. With cfg.Enabled false it returns a no-op
// provider that still satisfies every call site.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer("aegis")}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	traceExp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	p := &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer("aegis"),
	}

	meter := mp.Meter("aegis")
	if p.requestCounter, err = meter.Int64Counter("aegis.requests.total",
		metric.WithDescription("Provider requests handled")); err != nil {
		return nil, err
	}
	if p.errorCounter, err = meter.Int64Counter("aegis.requests.errors",
		metric.WithDescription("Provider requests answered with a protocol error")); err != nil {
		return nil, err
	}
	if p.durationHist, err = meter.Float64Histogram("aegis.requests.duration",
		metric.WithDescription("Request handling duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return p, nil
}

// StartRequest opens a span for one provider request.
func (p *Provider) StartRequest(ctx context.Context, kind string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "dispatcher.handle_request",
		trace.WithAttributes(attribute.String("aegis.request.kind", kind)))
}

// RecordRequest records RED metrics for one handled request.
func (p *Provider) RecordRequest(ctx context.Context, kind string, d time.Duration, errCode string) {
	if p.requestCounter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("aegis.request.kind", kind))
	p.requestCounter.Add(ctx, 1, attrs)
	p.durationHist.Record(ctx, d.Seconds(), attrs)
	if errCode != "" {
		p.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("aegis.request.kind", kind),
			attribute.String("aegis.error.code", errCode),
		))
	}
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var first error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			first = err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
