package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used by every span this package starts.
const TracerName = "github.com/teemow/rejectfewer"

// Span attribute keys.
const (
	SpanAttrRunID     = "triage.run_id"
	SpanAttrMessageID = "triage.message_id"
	SpanAttrSessionID = "triage.session_id"
	SpanAttrOutcome   = "triage.outcome"
	SpanAttrTool      = "agent.tool"
	SpanAttrModel     = "agent.model"
	SpanAttrProvider  = "mailbox.provider"
	SpanAttrOperation = "mailbox.operation"
	SpanAttrDryRun    = "triage.dry_run"
)

// StartSpan starts a span named name on the package tracer.
// The caller ends it with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartRunSpan starts the root span of an orchestrator run.
func StartRunSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "triage.run", attribute.String(SpanAttrRunID, runID))
}

// StartSessionSpan starts the span covering one triage session.
func StartSessionSpan(ctx context.Context, messageID, sessionID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "triage.session",
		attribute.String(SpanAttrMessageID, messageID),
		attribute.String(SpanAttrSessionID, sessionID),
	)
}

// StartToolSpan starts a span for an agent tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrTool, toolName))
	allAttrs = append(allAttrs, attrs...)

	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "tool."+toolName,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartMailboxSpan starts a client span for a mailbox provider call,
// named "<provider>.<operation>".
func StartMailboxSpan(ctx context.Context, provider, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrProvider, provider),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, provider+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartAgentSpan starts a client span for a language model call.
func StartAgentSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "agent.completion",
		trace.WithAttributes(attribute.String(SpanAttrModel, model)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records err on the span and marks it failed. Nil is ignored.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID of the span in ctx, or "".
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}
