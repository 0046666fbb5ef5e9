// Package motel provides the thin tracing glue threaded through context.
package motel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type tracerContextKey string

const tracerKey tracerContextKey = "tracer"

// ContextWithTracer returns a context carrying the given tracer.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	return context.WithValue(ctx, tracerKey, tracer)
}

// NewTracerFromContext extracts the tracer installed in ctx, falling back to
// the global tracer provider's default tracer for the service name.
//
//nolint:ireturn
func NewTracerFromContext(ctx context.Context) trace.Tracer {
	if tracer, ok := ctx.Value(tracerKey).(trace.Tracer); ok && tracer != nil {
		return tracer
	}

	return otel.Tracer("cratery")
}

// HandleSpanError records err on span and marks it as errored; used at every
// command/query boundary.
func HandleSpanError(span *trace.Span, message string, err error) {
	if span == nil || err == nil {
		return
	}

	(*span).SetStatus(codes.Error, message+": "+err.Error())
	(*span).RecordError(err)
}
