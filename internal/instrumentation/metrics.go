package instrumentation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrProvider  = "provider"
	attrOperation = "operation"
	attrStatus    = "status"
	attrOutcome   = "outcome"
	attrResult    = "result"
	attrTool      = "tool"
	attrModel     = "model"
)

// Metrics records triage observability metrics. A nil *Metrics, or one
// returned by a disabled Provider, silently drops every recording.
type Metrics struct {
	mailboxOperationsTotal   metric.Int64Counter
	mailboxOperationDuration metric.Float64Histogram

	agentCompletionsTotal   metric.Int64Counter
	agentCompletionDuration metric.Float64Histogram

	toolInvocationsTotal metric.Int64Counter

	sessionsTotal   metric.Int64Counter
	sessionDuration metric.Float64Histogram

	runsTotal metric.Int64Counter

	detailedLabels bool
}

// NewMetrics creates all instruments on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	m.mailboxOperationsTotal, err = meter.Int64Counter(
		"mailbox_operations_total",
		metric.WithDescription("Total number of mailbox provider operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailbox_operations_total counter: %w", err)
	}

	m.mailboxOperationDuration, err = meter.Float64Histogram(
		"mailbox_operation_duration_seconds",
		metric.WithDescription("Mailbox provider operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailbox_operation_duration_seconds histogram: %w", err)
	}

	m.agentCompletionsTotal, err = meter.Int64Counter(
		"agent_completions_total",
		metric.WithDescription("Total number of language model completion calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_completions_total counter: %w", err)
	}

	m.agentCompletionDuration, err = meter.Float64Histogram(
		"agent_completion_duration_seconds",
		metric.WithDescription("Language model completion latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_completion_duration_seconds histogram: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"agent_tool_invocations_total",
		metric.WithDescription("Total number of agent tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_tool_invocations_total counter: %w", err)
	}

	m.sessionsTotal, err = meter.Int64Counter(
		"triage_sessions_total",
		metric.WithDescription("Total number of triage sessions by outcome"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triage_sessions_total counter: %w", err)
	}

	m.sessionDuration, err = meter.Float64Histogram(
		"triage_session_duration_seconds",
		metric.WithDescription("Triage session duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triage_session_duration_seconds histogram: %w", err)
	}

	m.runsTotal, err = meter.Int64Counter(
		"triage_runs_total",
		metric.WithDescription("Total number of triage runs by result"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triage_runs_total counter: %w", err)
	}

	return m, nil
}

// RecordMailboxOperation records one provider call (list, get, trash, ...).
func (m *Metrics) RecordMailboxOperation(ctx context.Context, provider, operation, status string, duration time.Duration) {
	if m == nil || m.mailboxOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.mailboxOperationsTotal.Add(ctx, 1, attrs)
	m.mailboxOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAgentCompletion records one language model round trip. The model
// label is only attached when detailed labels are enabled.
func (m *Metrics) RecordAgentCompletion(ctx context.Context, model, status string, duration time.Duration) {
	if m == nil || m.agentCompletionsTotal == nil {
		return
	}

	kv := []attribute.KeyValue{attribute.String(attrStatus, status)}
	if m.detailedLabels && model != "" {
		kv = append(kv, attribute.String(attrModel, NormalizeModel(model)))
	}
	attrs := metric.WithAttributes(kv...)
	m.agentCompletionsTotal.Add(ctx, 1, attrs)
	m.agentCompletionDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolInvocation records an agent tool call.
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool, status string) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	))
}

// RecordSession records a closed triage session.
func (m *Metrics) RecordSession(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil || m.sessionsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))
	m.sessionsTotal.Add(ctx, 1, attrs)
	m.sessionDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRun records a finished orchestrator run.
func (m *Metrics) RecordRun(ctx context.Context, result string) {
	if m == nil || m.runsTotal == nil {
		return
	}

	m.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// NormalizeModel trims provider prefixes such as "models/" so the same model
// reported in two spellings lands on one series.
func NormalizeModel(model string) string {
	model = strings.TrimSpace(strings.ToLower(model))
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if model == "" {
		return "unknown"
	}
	return model
}
