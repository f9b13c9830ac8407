package logging

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestScopedLoggers(t *testing.T) {
	logger := slog.Default()
	if WithOperation(logger, "triage.run") == nil {
		t.Error("WithOperation returned nil")
	}
	if WithRun(logger, "run-1") == nil {
		t.Error("WithRun returned nil")
	}
	if WithSession(logger, "m1", "analyze_m1") == nil {
		t.Error("WithSession returned nil")
	}
}

func TestAttrs(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"operation", Operation("gmail.list"), KeyOperation, "gmail.list"},
		{"account", Account("work"), KeyAccount, "work"},
		{"message id", MessageID("18c2f"), KeyMessageID, "18c2f"},
		{"tool", Tool("trash_email"), KeyTool, "trash_email"},
		{"status", Status(StatusSuccess), KeyStatus, StatusSuccess},
		{"outcome", Outcome("tool_invoked"), KeyOutcome, "tool_invoked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.wantKey)
			}
			if tt.attr.Value.String() != tt.wantVal {
				t.Errorf("value = %q, want %q", tt.attr.Value.String(), tt.wantVal)
			}
		})
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("test error"))
	if attr.Key != KeyError {
		t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "test error" {
		t.Errorf("Err value = %q, want %q", attr.Value.String(), "test error")
	}

	// nil produces an empty group that slog omits
	attr = Err(nil)
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty string (empty group)", attr.Key)
	}
}

func TestAnonymizeEmail(t *testing.T) {
	tests := []struct {
		email    string
		hasValue bool
	}{
		{"jane@example.com", true},
		{`"Acme Careers" <jobs@acme.example>`, true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			result := AnonymizeEmail(tt.email)
			if !tt.hasValue {
				if result != "" {
					t.Errorf("AnonymizeEmail(%q) = %q, want empty string", tt.email, result)
				}
				return
			}
			// "sender:" + 16 hex chars
			if len(result) != 23 {
				t.Errorf("AnonymizeEmail(%q) length = %d, want 23", tt.email, len(result))
			}
			if !strings.HasPrefix(result, "sender:") {
				t.Errorf("AnonymizeEmail(%q) should start with 'sender:', got %q", tt.email, result)
			}
		})
	}

	if AnonymizeEmail("test@example.com") != AnonymizeEmail("test@example.com") {
		t.Error("AnonymizeEmail should return deterministic results")
	}
	if AnonymizeEmail("test@example.com") == AnonymizeEmail("other@example.com") {
		t.Error("Different emails should produce different hashes")
	}
	if AnonymizeEmail("Jobs <JOBS@acme.example>") != AnonymizeEmail("jobs@acme.example") {
		t.Error("display name and case should not change the hash")
	}
}

func TestSender(t *testing.T) {
	attr := Sender("jane@example.com")
	if attr.Key != KeySender {
		t.Errorf("Sender key = %q, want %q", attr.Key, KeySender)
	}
	if strings.Contains(attr.Value.String(), "jane") {
		t.Errorf("Sender value leaks address: %q", attr.Value.String())
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"abc123", "[token:6 chars]"},
		{"a_very_long_token_string", "[token:24 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := SanitizeToken(tt.token); got != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, got, tt.expected)
			}
		})
	}
}

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		from     string
		expected string
	}{
		{"jane@example.com", "jane@example.com"},
		{`"Acme Careers" <jobs@acme.example>`, "jobs@acme.example"},
		{"  spaced@example.com ", "spaced@example.com"},
		{"Unknown Sender", "Unknown Sender"},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			if got := ExtractAddress(tt.from); got != tt.expected {
				t.Errorf("ExtractAddress(%q) = %q, want %q", tt.from, got, tt.expected)
			}
		})
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"jane@example.com", "example.com"},
		{"Recruiting <noreply@Greenhouse.IO>", "greenhouse.io"},
		{"invalid", ""},
		{"", ""},
		{"@", ""},
		{"user@", ""},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := ExtractDomain(tt.email); got != tt.expected {
				t.Errorf("ExtractDomain(%q) = %q, want %q", tt.email, got, tt.expected)
			}
		})
	}
}

func TestDomain(t *testing.T) {
	attr := Domain("jane@example.com")
	if attr.Key != "sender_domain" {
		t.Errorf("Domain key = %q, want %q", attr.Key, "sender_domain")
	}
	if attr.Value.String() != "example.com" {
		t.Errorf("Domain value = %q, want %q", attr.Value.String(), "example.com")
	}
}
