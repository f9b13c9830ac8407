package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/teemow/rejectfewer/internal/logging"
	"github.com/teemow/rejectfewer/internal/mailbox"
)

// Trash result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NotFoundMarker tags results for ids the provider does not know, so they
// can be told apart from other failures.
const NotFoundMarker = "404 Not Found (invalid id?)"

// TrashResult is what the agent receives from the trash tool.
type TrashResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Succeeded implements agent.Outcome.
func (r TrashResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// NotFound reports whether the result carries NotFoundMarker.
func (r TrashResult) NotFound() bool {
	return r.Status == StatusError && strings.Contains(r.Message, NotFoundMarker)
}

func failure(format string, args ...any) TrashResult {
	return TrashResult{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// Gate is the only component that mutates the mailbox. It never dials: a
// trash request without an established connection fails.
type Gate struct {
	handle *MailboxHandle
	logger *slog.Logger
}

// NewGate returns a gate over handle.
func NewGate(handle *MailboxHandle, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{handle: handle, logger: logger}
}

// Trash moves one message to the provider's trash. Every outcome, including
// a panic in the gateway, is returned as a TrashResult.
func (g *Gate) Trash(ctx context.Context, messageID string) (res TrashResult) {
	logger := g.logger.With(logging.KeyMessageID, messageID, logging.KeyOperation, "trash")

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("trash panicked", "panic", rec, "stack", string(debug.Stack()))
			res = failure("unexpected error trashing email %s: %v", messageID, rec)
		}
	}()

	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return failure("missing message_id argument")
	}
	gw := g.handle.Current()
	if gw == nil {
		return failure("%s", ErrNoConnection.Error())
	}

	if err := gw.Trash(ctx, messageID); err != nil {
		if errors.Is(err, mailbox.ErrNotFound) {
			logger.Warn("trash target not found", logging.Err(err))
			return failure("email %s: %s", messageID, NotFoundMarker)
		}
		logger.Error("trash failed", logging.Err(err))
		return failure("failed to trash email %s: %v", messageID, err)
	}

	logger.Info("email moved to trash")
	return TrashResult{Status: StatusSuccess, Message: fmt.Sprintf("Email %s moved to Trash.", messageID)}
}
