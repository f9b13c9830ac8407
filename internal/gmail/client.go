package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/rejectfewer/internal/google"
	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/mailbox"
)

// listPageSize caps a single users.messages.list page.
const listPageSize = 100

// Client wraps the Gmail Users service for one account.
type Client struct {
	svc     *gmail.UsersService
	account string
	metrics *instrumentation.Metrics
}

var (
	_ mailbox.Gateway  = (*Client)(nil)
	_ mailbox.Restorer = (*Client)(nil)
	_ mailbox.Composer = (*Client)(nil)
)

// New creates a client from explicit API options. Tests point it at an
// httptest server with option.WithEndpoint and option.WithHTTPClient.
func New(ctx context.Context, account string, opts ...option.ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc.Users, account: account}, nil
}

// NewClientForAccount creates a client authenticated with the stored token of account.
func NewClientForAccount(ctx context.Context, tokens google.TokenProvider, account string) (*Client, error) {
	if !tokens.HasToken(account) {
		return nil, errors.New(google.AuthenticationErrorMessage(account))
	}
	ts, err := tokens.TokenSource(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token for account %s: %w", account, err)
	}
	return New(ctx, account, option.WithHTTPClient(google.NewHTTPClient(ts)))
}

// WithMetrics attaches a metrics recorder and returns c.
func (c *Client) WithMetrics(m *instrumentation.Metrics) *Client {
	c.metrics = m
	return c
}

// Account returns the account name this client is associated with.
func (c *Client) Account() string {
	return c.account
}

// observe runs fn inside a mailbox span and records its outcome.
func (c *Client) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartMailboxSpan(ctx, instrumentation.ProviderGmail, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	}
	c.metrics.RecordMailboxOperation(ctx, instrumentation.ProviderGmail, operation, status, time.Since(start))
	return err
}

// ListUnread returns up to limit message ids matching query, following pages as needed.
func (c *Client) ListUnread(ctx context.Context, query string, limit int64) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	var ids []string
	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		pageToken := ""
		for int64(len(ids)) < limit {
			req := c.svc.Messages.List("me").Q(query).MaxResults(min(limit-int64(len(ids)), listPageSize)).Context(ctx)
			if pageToken != "" {
				req.PageToken(pageToken)
			}
			res, err := req.Do()
			if err != nil {
				return fmt.Errorf("failed to list messages: %w", mapError(err))
			}
			for _, m := range res.Messages {
				if int64(len(ids)) == limit {
					break
				}
				ids = append(ids, m.Id)
			}
			if res.NextPageToken == "" {
				return nil
			}
			pageToken = res.NextPageToken
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetMessage retrieves a message in full format.
func (c *Client) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		msg, err = c.svc.Messages.Get("me", id).Format("full").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get message %s: %w", id, mapError(err))
		}
		return nil
	})
	return msg, err
}

// Fetch retrieves and normalizes one message.
func (c *Client) Fetch(ctx context.Context, id string) (mailbox.Record, error) {
	msg, err := c.GetMessage(ctx, id)
	if err != nil {
		return mailbox.Record{}, err
	}
	return Normalize(msg)
}

// Trash moves a message to Trash. Gmail purges trashed mail after 30 days,
// until then Untrash restores it.
func (c *Client) Trash(ctx context.Context, id string) error {
	return c.observe(ctx, instrumentation.OperationTrash, func(ctx context.Context) error {
		if _, err := c.svc.Messages.Trash("me", id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to trash message %s: %w", id, mapError(err))
		}
		return nil
	})
}

// Untrash moves a message out of Trash.
func (c *Client) Untrash(ctx context.Context, id string) error {
	return c.observe(ctx, instrumentation.OperationUntrash, func(ctx context.Context) error {
		if _, err := c.svc.Messages.Untrash("me", id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to untrash message %s: %w", id, mapError(err))
		}
		return nil
	})
}

// Labels returns the names of the account's labels. It doubles as a cheap
// connectivity check for `auth status`.
func (c *Client) Labels(ctx context.Context) ([]string, error) {
	var names []string
	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		res, err := c.svc.Labels.List("me").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to list labels: %w", mapError(err))
		}
		for _, l := range res.Labels {
			names = append(names, l.Name)
		}
		return nil
	})
	return names, err
}

// Profile returns the email address of the authenticated account.
func (c *Client) Profile(ctx context.Context) (string, error) {
	var addr string
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		p, err := c.svc.GetProfile("me").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get profile: %w", mapError(err))
		}
		addr = p.EmailAddress
		return nil
	})
	return addr, err
}

// mapError turns a Gmail 404 into mailbox.ErrNotFound while keeping the
// provider detail in the message.
func mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", mailbox.ErrNotFound, apiErr.Message)
	}
	return err
}
