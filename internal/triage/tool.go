package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teemow/rejectfewer/internal/agent"
	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/logging"
)

// TrashToolName is the name the model calls.
const TrashToolName = "trash_email"

// Session state keys.
const (
	StateMessageID = "message_id"
	StateRunID     = "run_id"
	StateSender    = "sender"
	StateSubject   = "subject"

	stateTrashInvoked = "trash_invoked"
)

// TrashTool describes trash_email to the model.
func TrashTool() agent.Tool {
	return agent.Tool{
		Name: TrashToolName,
		Description: "Moves the email under analysis to Trash. Call it only after confirming the email " +
			"is a rejection of a job application, at most once, with the exact message_id from the request. " +
			"Returns a status ('success' or 'error') and a message.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message_id": map[string]any{
					"type":        "string",
					"description": "The message_id given in the request.",
				},
			},
			"required": []string{"message_id"},
		},
	}
}

// TrashHandlerOptions configures NewTrashHandler.
type TrashHandlerOptions struct {
	// DryRun reports success without calling the mailbox.
	DryRun bool
	Audit  *instrumentation.AuditLogger
	Logger *slog.Logger
}

// NewTrashHandler returns the session-scoped trash_email handler. The only id
// it accepts is the session's own message_id, and only on the first call.
// All failures are returned as a TrashResult.
func NewTrashHandler(gate *Gate, opts TrashHandlerOptions) agent.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, args map[string]any) (any, error) {
		id, _ := args["message_id"].(string)
		id = strings.TrimSpace(id)

		sess, ok := agent.SessionFromContext(ctx)
		if !ok {
			return failure("trash_email called outside of a triage session"), nil
		}

		inv := instrumentation.NewToolInvocation(TrashToolName).
			WithSession(sess.ID, id).
			WithRun(sess.String(StateRunID)).
			WithMessage(sess.String(StateSender), sess.String(StateSubject)).
			WithDryRun(opts.DryRun).
			WithSpanContext(ctx)

		res := trash(ctx, gate, sess, id, opts.DryRun)

		errMsg := ""
		if !res.Succeeded() {
			errMsg = res.Message
		}
		opts.Audit.LogToolInvocation(inv.Complete(res.Succeeded(), errMsg))
		logging.WithSession(logger, id, sess.ID).Debug("trash_email handled",
			logging.Status(res.Status),
			slog.String("detail", res.Message))
		return res, nil
	}
}

func trash(ctx context.Context, gate *Gate, sess *agent.Session, id string, dryRun bool) TrashResult {
	if id == "" {
		return failure("missing message_id argument")
	}
	if allowed := sess.String(StateMessageID); id != allowed {
		return failure("message %s is not part of the current session", id)
	}
	if !sess.SetIfAbsent(stateTrashInvoked, true) {
		return failure("trash_email already invoked for message %s in this session", id)
	}
	if dryRun {
		return TrashResult{Status: StatusSuccess, Message: fmt.Sprintf("Dry run: email %s would be moved to Trash.", id)}
	}
	return gate.Trash(ctx, id)
}
