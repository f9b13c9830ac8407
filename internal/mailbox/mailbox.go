// Package mailbox defines the provider-neutral view of a mailbox used by the
// triage pipeline: a normalized message record and the gateway operations a
// provider must offer.
package mailbox

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// Placeholders used when a header is missing.
const (
	DefaultSubject = "No Subject"
	DefaultSender  = "Unknown Sender"
)

// DefaultQuery selects unread mail in the primary inbox tab.
const DefaultQuery = "in:inbox is:unread category:primary"

// ErrNotFound is returned by gateways when a message id does not exist.
var ErrNotFound = errors.New("message not found")

// Record is the normalized form of one fetched message. It is read-only after
// normalization and lives for a single triage session.
type Record struct {
	ID      string
	Subject string
	Sender  string
	// Date is the raw Date header, kept for display only.
	Date string
	Body string
	// SnippetFallback is set when no text/plain part was found and Body
	// holds the provider's short preview instead.
	SnippetFallback bool
}

// Gateway is the minimal contract the orchestrator needs from a mail provider.
type Gateway interface {
	// ListUnread returns at most limit message ids matching query.
	ListUnread(ctx context.Context, query string, limit int64) ([]string, error)
	// Fetch retrieves and normalizes one message.
	Fetch(ctx context.Context, id string) (Record, error)
	// Trash moves one message to the provider's trash. It never purges.
	Trash(ctx context.Context, id string) error
}

// Restorer undoes Trash.
type Restorer interface {
	Untrash(ctx context.Context, id string) error
}

// Composer sends a plain text message.
type Composer interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// HeaderOrDefault trims v and substitutes def when it is empty.
func HeaderOrDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

// ToValidUTF8 replaces invalid byte sequences with U+FFFD.
func ToValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}
