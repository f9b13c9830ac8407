package instrumentation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ToolInvocation captures one call of a destructive agent tool for the audit log.
//
// # Privacy Considerations
//
// Sender and Subject identify a person's correspondence. LogAttrs only emits
// the sender domain; LogAuditAttrs emits both in clear text.
type ToolInvocation struct {
	Tool      string
	RunID     string
	SessionID string
	MessageID string
	Sender    string
	Subject   string
	DryRun    bool

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts timing an invocation. Call Complete when it returns.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithSession sets the session and message the tool acted on.
func (ti *ToolInvocation) WithSession(sessionID, messageID string) *ToolInvocation {
	ti.SessionID = sessionID
	ti.MessageID = messageID
	return ti
}

// WithRun sets the orchestrator run id.
func (ti *ToolInvocation) WithRun(runID string) *ToolInvocation {
	ti.RunID = runID
	return ti
}

// WithMessage sets the sender and subject of the affected message.
func (ti *ToolInvocation) WithMessage(sender, subject string) *ToolInvocation {
	ti.Sender = sender
	ti.Subject = subject
	return ti
}

// WithDryRun marks an invocation that did not touch the mailbox.
func (ti *ToolInvocation) WithDryRun(dryRun bool) *ToolInvocation {
	ti.DryRun = dryRun
	return ti
}

// WithSpanContext copies trace and span ids from the span in ctx.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete records duration and result.
func (ti *ToolInvocation) Complete(success bool, errMsg string) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	ti.Error = errMsg
	return ti
}

// Status returns "success" or "error".
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// SenderDomain returns the lower-cased domain of Sender, or "unknown".
func (ti *ToolInvocation) SenderDomain() string {
	from := ti.Sender
	if i := strings.LastIndex(from, "<"); i >= 0 {
		from = strings.TrimSuffix(from[i+1:], ">")
	}
	parts := strings.Split(strings.TrimSpace(from), "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}
	return "unknown"
}

// LogAttrs returns attributes without clear-text correspondence details.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.String("message_id", ti.MessageID),
		slog.String("sender_domain", ti.SenderDomain()),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	return ti.appendOptional(attrs)
}

// LogAuditAttrs returns attributes including sender and subject.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.String("message_id", ti.MessageID),
		slog.String("sender", ti.Sender),
		slog.String("subject", ti.Subject),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	return ti.appendOptional(attrs)
}

func (ti *ToolInvocation) appendOptional(attrs []slog.Attr) []slog.Attr {
	if ti.RunID != "" {
		attrs = append(attrs, slog.String("run_id", ti.RunID))
	}
	if ti.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", ti.SessionID))
	}
	if ti.DryRun {
		attrs = append(attrs, slog.Bool("dry_run", true))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// AuditLogger writes one structured record per destructive tool call.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger returns an enabled AuditLogger that omits clear-text details.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates an AuditLogger from config.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("component", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogToolInvocation writes ti. Failed invocations are logged at warn level.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = ti.LogAuditAttrs()
	} else {
		attrs = ti.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ti.Success {
		al.logger.Info("tool_executed", args...)
	} else {
		al.logger.Warn("tool_failed", args...)
	}
}
