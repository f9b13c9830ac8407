package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyAccount   = "account"
	KeyRunID     = "run_id"
	KeyMessageID = "message_id"
	KeySessionID = "session_id"
	KeySender    = "sender_hash"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyOutcome   = "outcome"
	KeyError     = "error"
	KeyTool      = "tool"
)

// Status values for consistent logging.
// Note: These are intentionally duplicated from instrumentation package
// to avoid circular dependencies (instrumentation imports logging).
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithRun returns a logger scoped to a single triage run.
func WithRun(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With(slog.String(KeyRunID, runID))
}

// WithSession returns a logger scoped to one triage session.
func WithSession(logger *slog.Logger, messageID, sessionID string) *slog.Logger {
	return logger.With(slog.String(KeyMessageID, messageID), slog.String(KeySessionID, sessionID))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Account returns a slog attribute for the account name.
func Account(account string) slog.Attr {
	return slog.String(KeyAccount, account)
}

// MessageID returns a slog attribute for a mailbox message id.
func MessageID(id string) slog.Attr {
	return slog.String(KeyMessageID, id)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Outcome returns a slog attribute for a session outcome.
func Outcome(outcome string) slog.Attr {
	return slog.String(KeyOutcome, outcome)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a hashed representation of an email for logging purposes.
// Senders of triaged mail are logged this way so entries can be correlated
// without writing addresses to disk.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(ExtractAddress(email))))
	return "sender:" + hex.EncodeToString(hash[:8])
}

// Sender returns a slog attribute with the anonymized sender address.
func Sender(from string) slog.Attr {
	return slog.String(KeySender, AnonymizeEmail(from))
}

// SanitizeToken returns a masked version of a token or API key for logging.
// Only the length is exposed.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractAddress pulls the bare address out of a From header value such as
// `"Acme Careers" <jobs@acme.example>`. Values without angle brackets are
// returned trimmed.
func ExtractAddress(from string) string {
	from = strings.TrimSpace(from)
	start := strings.LastIndex(from, "<")
	end := strings.LastIndex(from, ">")
	if start >= 0 && end > start {
		return strings.TrimSpace(from[start+1 : end])
	}
	return from
}

// ExtractDomain extracts the domain part from an email address or From header.
// Domains have much lower cardinality than full addresses.
func ExtractDomain(email string) string {
	parts := strings.Split(ExtractAddress(email), "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

// Domain returns a slog attribute for the sender domain.
func Domain(email string) slog.Attr {
	return slog.String("sender_domain", ExtractDomain(email))
}
