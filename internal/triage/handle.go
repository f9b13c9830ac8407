package triage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/teemow/rejectfewer/internal/mailbox"
)

var (
	ErrNoConnection       = errors.New("mailbox connection not available")
	ErrRestoreUnsupported = errors.New("mailbox provider cannot restore trashed messages")
)

// DialFunc opens a mailbox connection.
type DialFunc func(ctx context.Context) (mailbox.Gateway, error)

// MailboxHandle owns the process-wide mailbox connection. It is created
// lazily on first use and then reused across runs.
type MailboxHandle struct {
	dial DialFunc

	mu sync.Mutex
	gw mailbox.Gateway
}

// NewMailboxHandle returns a handle that connects with dial on first use.
func NewMailboxHandle(dial DialFunc) *MailboxHandle {
	return &MailboxHandle{dial: dial}
}

// NewConnectedHandle wraps an existing gateway.
func NewConnectedHandle(gw mailbox.Gateway) *MailboxHandle {
	return &MailboxHandle{gw: gw}
}

// Ensure returns the connection, dialing if there is none yet. A failed dial
// leaves the handle unconnected so the next call retries.
func (h *MailboxHandle) Ensure(ctx context.Context) (mailbox.Gateway, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.gw != nil {
		return h.gw, nil
	}
	if h.dial == nil {
		return nil, ErrNoConnection
	}
	gw, err := h.dial(ctx)
	if err != nil {
		return nil, err
	}
	if gw == nil {
		return nil, ErrNoConnection
	}
	h.gw = gw
	return gw, nil
}

// Current returns the connection without dialing, or nil.
func (h *MailboxHandle) Current() mailbox.Gateway {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gw
}

// Connected reports whether a connection exists.
func (h *MailboxHandle) Connected() bool {
	return h.Current() != nil
}

// Restore moves a trashed message back to the inbox.
func (h *MailboxHandle) Restore(ctx context.Context, id string) error {
	gw, err := h.Ensure(ctx)
	if err != nil {
		return err
	}
	r, ok := gw.(mailbox.Restorer)
	if !ok {
		return ErrRestoreUnsupported
	}
	if err := r.Untrash(ctx, id); err != nil {
		return fmt.Errorf("restoring %s: %w", id, err)
	}
	return nil
}

// Close drops the connection, closing it if the gateway supports that.
func (h *MailboxHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	gw := h.gw
	h.gw = nil
	if c, ok := gw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
