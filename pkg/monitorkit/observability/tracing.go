package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the monitorkit tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("monitorkit")

// StartAcquireSpan starts a span covering one acquire, from request to
// ownership (or failure).
func StartAcquireSpan(ctx context.Context, monitorID, threadID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "monitorkit.acquire",
		trace.WithAttributes(
			attribute.String("monitor.id", monitorID),
			attribute.String("thread.id", threadID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartWaitSpan starts a span covering one wait, from suspension through
// reacquisition.
func StartWaitSpan(ctx context.Context, monitorID, threadID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "monitorkit.wait",
		trace.WithAttributes(
			attribute.String("monitor.id", monitorID),
			attribute.String("thread.id", threadID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
