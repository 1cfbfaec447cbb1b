package tracing

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by poller spans.
const (
	AttrRunID          = attribute.Key("poller.run.id")
	AttrRunDuration    = attribute.Key("poller.run.duration_seconds")
	AttrRunSuccessful  = attribute.Key("poller.run.successful_responses")
	AttrRunSum         = attribute.Key("poller.run.value_sum")
	AttrUpstreamResult = attribute.Key("poller.upstream.outcome")
)

// StartRunSpan opens the span covering one run's execution window.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, runID string, window time.Duration) (context.Context, trace.Span) {
	return tracer.Start(ctx, "run execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrRunID.String(runID),
			AttrRunDuration.Int64(int64(window/time.Second)),
		),
	)
}

// StartUpstreamSpan opens a client span for one call to the upstream server.
func StartUpstreamSpan(ctx context.Context, tracer trace.Tracer, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "upstream GET",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", http.MethodGet),
			AttrRunID.String(runID),
		),
	)
}

// EndSpan finishes span, marking it failed when err is non-nil.
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

// InjectHTTPHeaders writes W3C trace context from ctx into headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
