// Package racetracing provides opt-in OpenTelemetry trace propagation,
// adapted from the teacher's internal/tracing/tracing.go. Disabled by
// default; Setup wires an OTLP HTTP exporter and W3C propagation when the
// caller turns it on. There is no inbound HTTP server in this module, so
// unlike the teacher, only the outbound transport wrapper and a manual
// span helper for one streamed agent call are kept.
package racetracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config holds the OTel tracing configuration. When Enabled is false,
// Setup is a no-op and StartSpan returns an inert span.
type Config struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

var tracer = otel.Tracer("llmrace")

// Setup initializes the TracerProvider with an OTLP HTTP exporter and
// sets the global W3C propagator. The returned shutdown must be called to
// flush pending spans. When cfg.Enabled is false, Setup is a no-op.
func Setup(cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	ctx := context.Background()
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// HTTPTransport wraps base with OTel instrumentation so outgoing provider
// calls propagate traceparent/tracestate headers. base=nil uses
// http.DefaultTransport.
func HTTPTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base)
}

// StartSpan opens a span for one named unit of race work (a preview
// stream, a full-answer stream, a judge call) and returns the derived
// context and an end function recording err, if any, before closing.
func StartSpan(ctx context.Context, name string) (context.Context, func(err error)) {
	spanCtx, span := tracer.Start(ctx, name)
	return spanCtx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
