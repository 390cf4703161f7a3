// Package tracing wires OpenTelemetry for the homeserver requests. Without an
// OTLP endpoint the global no-op provider stays installed and spans cost
// nothing.
package tracing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	otrace "go.opentelemetry.io/otel/trace"
)

const (
	tracerName  = "multiverse"
	serviceName = "multiverse"
)

// Span is a started span; call End when the operation finishes.
type Span struct {
	span otrace.Span
}

func (s *Span) End() {
	s.span.End()
}

// Fail records err on the span.
func (s *Span) Fail(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}

// StartSpan starts a span named name as a child of any span in ctx.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	newCtx, span := otel.Tracer(tracerName).Start(ctx, name, otrace.WithAttributes(attrs...))
	return newCtx, &Span{span: span}
}

// Logf adds an event to the span in ctx.
func Logf(ctx context.Context, category, format string, args ...interface{}) {
	otrace.SpanFromContext(ctx).AddEvent(fmt.Sprintf(format, args...), otrace.WithAttributes(
		attribute.String("category", category),
	))
}

// Transport wraps base so every request gets a client span and carries the
// propagation headers.
func Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base)
}

// Configure installs an OTLP/HTTP exporter sending to otlpURL. An empty URL
// leaves tracing disabled. The returned function flushes and stops the
// exporter.
func Configure(otlpURL, version string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if otlpURL == "" {
		return noop, nil
	}
	parsed, err := url.Parse(otlpURL)
	if err != nil {
		return noop, fmt.Errorf("parsing OTLP URL: %w", err)
	}
	if parsed.Host == "" {
		return noop, fmt.Errorf("OTLP URL %s has no host", otlpURL)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return noop, fmt.Errorf("OTLP URL %s cannot contain any path segments", otlpURL)
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(parsed.Host),
	}
	if parsed.Scheme == "http" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
	if err != nil {
		return noop, fmt.Errorf("creating OTLP exporter: %w", err)
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			attribute.String("version", version),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}, jaeger.Jaeger{},
	))
	return tp.Shutdown, nil
}
