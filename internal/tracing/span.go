package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartEpochSpan starts a span covering one connection epoch of the feed
// session.
func StartEpochSpan(ctx context.Context, tracer trace.Tracer, symbol, epochID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "feed epoch",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("mmcore.symbol", symbol),
		attribute.String("mmcore.epoch_id", epochID),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
