package ls

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/digitalfortress-tech/localstorage-slim/internal/tracing"
)

const tracerName = "localstorage_slim.ls"

// startSpan starts a span for one store operation
func (s *Store) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "ls."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String(tracing.AttrOperation, operation),
		attribute.String(tracing.AttrNamespace, s.namespace),
	)
	span.SetAttributes(attrs...)
	return ctx, span
}

// endSpan records the outcome and ends the span
func endSpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String(tracing.AttrStatus, status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func keyAttr(key string) attribute.KeyValue {
	return attribute.String(tracing.AttrKey, key)
}
