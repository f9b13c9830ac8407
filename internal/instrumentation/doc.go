// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for rejectfewer.
//
// # Metrics
//
//   - mailbox_operations_total / mailbox_operation_duration_seconds:
//     provider calls by provider, operation and status
//   - agent_completions_total / agent_completion_duration_seconds:
//     language model round trips by status (and model with detailed labels)
//   - agent_tool_invocations_total: tool calls by tool and status
//   - triage_sessions_total / triage_session_duration_seconds: sessions by outcome
//   - triage_runs_total: orchestrator runs by result
//
// # Tracing
//
// A run produces a triage.run span with one triage.session child per
// message. Mailbox calls appear as <provider>.<operation> client spans and
// language model calls as agent.completion.
//
// # Configuration
//
// Instrumentation is configured from the environment:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT
//   - OTEL_TRACES_SAMPLER_ARG (default: 1.0)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordSession(ctx, instrumentation.OutcomeNoAction, time.Since(start))
package instrumentation
