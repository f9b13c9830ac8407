package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

const (
	testTool    = "trash_email"
	testSender  = `"Acme Careers" <Jobs@Acme.Example>`
	testSubject = "Update on your application"
)

func TestToolInvocation_Builder(t *testing.T) {
	ti := NewToolInvocation(testTool).
		WithRun("run-1").
		WithSession("analyze_m1", "m1").
		WithMessage(testSender, testSubject).
		WithDryRun(true).
		WithSpanContext(context.Background())

	if ti.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}
	if ti.RunID != "run-1" || ti.SessionID != "analyze_m1" || ti.MessageID != "m1" {
		t.Errorf("unexpected ids: %+v", ti)
	}
	if !ti.DryRun {
		t.Error("DryRun should be set")
	}
	if ti.TraceID != "" {
		t.Error("no span in context, TraceID should be empty")
	}

	ti.Complete(true, "")
	if ti.Status() != StatusSuccess {
		t.Errorf("Status() = %q, want %q", ti.Status(), StatusSuccess)
	}
	if ti.Duration < 0 {
		t.Error("Duration should not be negative")
	}

	ti.Complete(false, "404 Not Found")
	if ti.Status() != StatusError || ti.Error != "404 Not Found" {
		t.Errorf("unexpected failure state: %q %q", ti.Status(), ti.Error)
	}
}

func TestToolInvocation_SenderDomain(t *testing.T) {
	tests := []struct {
		sender string
		want   string
	}{
		{testSender, "acme.example"},
		{"jane@example.com", "example.com"},
		{"Unknown Sender", "unknown"},
		{"", "unknown"},
		{"user@", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.sender, func(t *testing.T) {
			ti := &ToolInvocation{Sender: tt.sender}
			if got := ti.SenderDomain(); got != tt.want {
				t.Errorf("SenderDomain() = %q, want %q", got, tt.want)
			}
		})
	}
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid log record %q: %v", buf.String(), err)
	}
	return rec
}

func TestAuditLogger_OmitsPIIByDefault(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ti := NewToolInvocation(testTool).WithSession("analyze_m1", "m1").WithMessage(testSender, testSubject)
	al.LogToolInvocation(ti.Complete(true, ""))

	rec := decodeRecord(t, &buf)
	if rec["msg"] != "tool_executed" {
		t.Errorf("msg = %v, want tool_executed", rec["msg"])
	}
	if rec["sender_domain"] != "acme.example" {
		t.Errorf("sender_domain = %v", rec["sender_domain"])
	}
	if strings.Contains(buf.String(), testSubject) || strings.Contains(buf.String(), "Jobs@") {
		t.Errorf("audit record leaked PII: %s", buf.String())
	}
}

func TestAuditLogger_IncludePII(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: true, IncludePII: true})

	ti := NewToolInvocation(testTool).WithSession("analyze_m1", "m1").WithMessage(testSender, testSubject)
	al.LogToolInvocation(ti.Complete(false, "boom"))

	rec := decodeRecord(t, &buf)
	if rec["msg"] != "tool_failed" {
		t.Errorf("msg = %v, want tool_failed", rec["msg"])
	}
	if rec["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", rec["level"])
	}
	if rec["subject"] != testSubject || rec["sender"] != testSender {
		t.Errorf("expected clear-text details, got %v", rec)
	}
	if rec["error"] != "boom" {
		t.Errorf("error = %v", rec["error"])
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})
	al.LogToolInvocation(NewToolInvocation(testTool).Complete(true, ""))

	var nilLogger *AuditLogger
	nilLogger.LogToolInvocation(NewToolInvocation(testTool))

	if buf.Len() != 0 {
		t.Errorf("disabled audit logger wrote %q", buf.String())
	}
}
