package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/rejectfewer/internal/instrumentation"
)

// composePlain renders a single-part text/plain RFC 5322 message.
func composePlain(to, subject, body string, now time.Time) ([]byte, error) {
	if to == "" {
		return nil, errors.New("recipient is required")
	}
	if subject == "" {
		return nil, errors.New("subject is required")
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

// Send delivers a plain text message from the authenticated account and
// returns the new message id.
func (c *Client) Send(ctx context.Context, to, subject, body string) (string, error) {
	raw, err := composePlain(to, subject, body, time.Now())
	if err != nil {
		return "", err
	}

	var id string
	err = c.observe(ctx, instrumentation.OperationSend, func(ctx context.Context) error {
		sent, err := c.svc.Messages.Send("me", &gmail.Message{
			Raw: base64.URLEncoding.EncodeToString(raw),
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to send email: %w", mapError(err))
		}
		id = sent.Id
		return nil
	})
	return id, err
}
