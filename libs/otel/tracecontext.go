package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContextStrings captures the current trace so it can be stored next to an outbox row and
// resumed by the publisher later.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	return c.Get("traceparent"), c.Get("tracestate")
}

// ContextWithTraceContext is the inverse of TraceContextStrings. Empty input returns ctx unchanged.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	c := propagation.MapCarrier{"traceparent": traceparent}
	if tracestate != "" {
		c.Set("tracestate", tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, c)
}
