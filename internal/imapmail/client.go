package imapmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/mailbox"
)

const inbox = "INBOX"

// Config describes an IMAP account.
type Config struct {
	Host         string
	Port         int
	Username     string
	Password     string
	TLS          bool
	TrashMailbox string
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports missing connection settings.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("imap host is required")
	case c.Username == "":
		return errors.New("imap username is required")
	case c.Password == "":
		return errors.New("imap password is required")
	case c.TrashMailbox == "":
		return errors.New("imap trash mailbox is required")
	}
	return nil
}

// Client is a mailbox.Gateway over a single authenticated IMAP connection
// with INBOX selected. Message ids are INBOX UIDs in decimal.
type Client struct {
	conn    *imapclient.Client
	trash   string
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	// imapclient pipelines commands; the mutex keeps one logical
	// operation (search then move) from interleaving with another.
	mu sync.Mutex
}

var _ mailbox.Gateway = (*Client)(nil)

// Dial connects, authenticates and selects INBOX.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		conn *imapclient.Client
		err  error
	)
	if cfg.TLS {
		conn, err = imapclient.DialTLS(cfg.Addr(), nil)
	} else {
		conn, err = imapclient.DialStartTLS(cfg.Addr(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", cfg.Addr(), err)
	}
	return newClient(conn, cfg, logger)
}

// newClient logs in on an established connection and selects INBOX. It takes
// ownership of conn and closes it on failure.
func newClient(conn *imapclient.Client, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := conn.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("IMAP authentication failed for %s: %w", cfg.Username, err)
	}
	if _, err := conn.Select(inbox, nil).Wait(); err != nil {
		_ = conn.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", inbox, err)
	}

	logger.Debug("IMAP connection ready", "addr", cfg.Addr())
	return &Client{conn: conn, trash: cfg.TrashMailbox, logger: logger}, nil
}

// WithMetrics attaches a metrics recorder and returns c.
func (c *Client) WithMetrics(m *instrumentation.Metrics) *Client {
	c.metrics = m
	return c
}

// Close logs out and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Logout().Wait(); err != nil {
		_ = c.conn.Close()
		return err
	}
	return c.conn.Close()
}

func (c *Client) observe(ctx context.Context, operation string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := instrumentation.StartMailboxSpan(ctx, instrumentation.ProviderIMAP, operation)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	err := fn()
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	}
	c.metrics.RecordMailboxOperation(ctx, instrumentation.ProviderIMAP, operation, status, time.Since(start))
	return err
}

// ListUnread returns the newest limit unseen INBOX messages, oldest first.
// IMAP has no equivalent of Gmail search syntax, so query is only logged.
func (c *Client) ListUnread(ctx context.Context, query string, limit int64) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	c.logger.Debug("IMAP lists all unseen INBOX mail, query not applied", "query", query)

	var ids []string
	err := c.observe(ctx, instrumentation.OperationList, func() error {
		data, err := c.conn.UIDSearch(&imap.SearchCriteria{
			NotFlag: []imap.Flag{imap.FlagSeen},
		}, nil).Wait()
		if err != nil {
			return fmt.Errorf("searching unseen messages: %w", err)
		}
		ids = formatUIDs(newest(data.AllUIDs(), limit))
		return nil
	})
	return ids, err
}

// Fetch downloads BODY.PEEK[] so the message stays unread, and normalizes it.
func (c *Client) Fetch(ctx context.Context, id string) (mailbox.Record, error) {
	uid, err := parseUID(id)
	if err != nil {
		return mailbox.Record{}, err
	}

	var raw []byte
	err = c.observe(ctx, instrumentation.OperationGet, func() error {
		section := &imap.FetchItemBodySection{Peek: true}
		cmd := c.conn.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
			UID:         true,
			BodySection: []*imap.FetchItemBodySection{section},
		})
		defer cmd.Close()

		msg := cmd.Next()
		if msg == nil {
			return fmt.Errorf("%w: uid %d", mailbox.ErrNotFound, uid)
		}
		buf, err := msg.Collect()
		if err != nil {
			return fmt.Errorf("collecting message data: %w", err)
		}
		raw = buf.FindBodySection(section)
		if err := cmd.Close(); err != nil {
			return fmt.Errorf("fetching message %d: %w", uid, err)
		}
		return nil
	})
	if err != nil {
		return mailbox.Record{}, err
	}
	if raw == nil {
		return mailbox.Record{}, fmt.Errorf("message %d returned no body", uid)
	}
	return Normalize(id, raw)
}

// Trash moves a message into the configured trash mailbox. A UID that is no
// longer in INBOX (including one already trashed) reports mailbox.ErrNotFound.
func (c *Client) Trash(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	return c.observe(ctx, instrumentation.OperationTrash, func() error {
		set := imap.UIDSetNum(uid)
		data, err := c.conn.UIDSearch(&imap.SearchCriteria{UID: []imap.UIDSet{set}}, nil).Wait()
		if err != nil {
			return fmt.Errorf("looking up uid %d: %w", uid, err)
		}
		if len(data.AllUIDs()) == 0 {
			return fmt.Errorf("%w: uid %d is not in %s", mailbox.ErrNotFound, uid, inbox)
		}
		if _, err := c.conn.Move(set, c.trash).Wait(); err != nil {
			return fmt.Errorf("moving uid %d to %s: %w", uid, c.trash, err)
		}
		return nil
	})
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q is not an IMAP uid", mailbox.ErrNotFound, id)
	}
	return imap.UID(n), nil
}

// newest keeps the last limit uids. Servers return search results in
// ascending order, so these are the most recent arrivals.
func newest(uids []imap.UID, limit int64) []imap.UID {
	if int64(len(uids)) > limit {
		return uids[int64(len(uids))-limit:]
	}
	return uids
}

func formatUIDs(uids []imap.UID) []string {
	if len(uids) == 0 {
		return nil
	}
	out := make([]string, len(uids))
	for i, u := range uids {
		out[i] = strconv.FormatUint(uint64(u), 10)
	}
	return out
}
