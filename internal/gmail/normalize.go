package gmail

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/rejectfewer/internal/mailbox"
)

// Normalize converts a full-format Gmail message into a mailbox.Record.
//
// The body is the first text/plain part found depth-first, descending only
// into multipart containers. When there is none, or it decodes to nothing,
// the snippet is used and SnippetFallback is set.
func Normalize(msg *gmail.Message) (mailbox.Record, error) {
	if msg == nil {
		return mailbox.Record{}, errors.New("nil message")
	}

	rec := mailbox.Record{
		ID:      msg.Id,
		Subject: mailbox.HeaderOrDefault(HeaderValue(msg, "Subject"), mailbox.DefaultSubject),
		Sender:  mailbox.HeaderOrDefault(HeaderValue(msg, "From"), mailbox.DefaultSender),
		Date:    HeaderValue(msg, "Date"),
	}

	body, err := plainTextBody(msg.Payload)
	if err != nil {
		return mailbox.Record{}, fmt.Errorf("message %s: %w", msg.Id, err)
	}
	if body == "" {
		body = msg.Snippet
		rec.SnippetFallback = true
	}
	rec.Body = body
	return rec, nil
}

func plainTextBody(payload *gmail.MessagePart) (string, error) {
	if payload == nil {
		return "", nil
	}
	if len(payload.Parts) == 0 {
		if strings.Contains(payload.MimeType, "text/plain") && hasData(payload) {
			return decodeBody(payload.Body.Data)
		}
		return "", nil
	}

	part := findPlainPart(payload.Parts)
	if part == nil {
		return "", nil
	}
	return decodeBody(part.Body.Data)
}

func findPlainPart(parts []*gmail.MessagePart) *gmail.MessagePart {
	for _, p := range parts {
		if p == nil {
			continue
		}
		if p.MimeType == "text/plain" && hasData(p) {
			return p
		}
		if strings.HasPrefix(p.MimeType, "multipart/") && len(p.Parts) > 0 {
			if found := findPlainPart(p.Parts); found != nil {
				return found
			}
		}
	}
	return nil
}

func hasData(p *gmail.MessagePart) bool {
	return p.Body != nil && p.Body.Data != ""
}

// decodeBody decodes base64url body data, tolerating missing padding and
// the occasional standard-alphabet payload.
func decodeBody(data string) (string, error) {
	trimmed := strings.TrimRight(data, "=")
	decoded, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(trimmed)
		if err != nil {
			return "", fmt.Errorf("failed to decode message body: %w", err)
		}
	}
	return mailbox.ToValidUTF8(decoded), nil
}

// HeaderValue returns the first top-level header named name, compared
// case-insensitively.
func HeaderValue(m *gmail.Message, name string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
