package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/teemow/rejectfewer/internal/agent"
	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/logging"
	"github.com/teemow/rejectfewer/internal/mailbox"
)

// DefaultAgentTimeout bounds one session.
const DefaultAgentTimeout = 60 * time.Second

const noResponse = "Agent analysis did not complete or produce a response."

// Outcome is the terminal state of a session.
type Outcome string

const (
	OutcomeToolInvoked Outcome = "TOOL_INVOKED"
	OutcomeNoAction    Outcome = "NO_ACTION"
)

func (o Outcome) metricLabel() string {
	if o == OutcomeToolInvoked {
		return instrumentation.OutcomeToolInvoked
	}
	return instrumentation.OutcomeNoAction
}

// Invocation is the trash tool call of a session.
type Invocation struct {
	MessageID string
	Status    string
	Detail    string
}

// SessionResult describes one finished session.
type SessionResult struct {
	MessageID  string
	SessionID  string
	Outcome    Outcome
	Response   string
	Invocation *Invocation
	// Err is set when the session ended in NO_ACTION because of a failure
	// rather than a decision.
	Err      error
	Duration time.Duration
}

// Trashed reports whether the message was moved to Trash.
func (r SessionResult) Trashed() bool {
	return r.Invocation != nil && r.Invocation.Status == StatusSuccess
}

// AgentRunner starts a turn in an existing agent session.
type AgentRunner interface {
	Run(ctx context.Context, sessionID, prompt string) (<-chan agent.Event, error)
}

// TriagerConfig configures a Triager.
type TriagerConfig struct {
	Runner       AgentRunner
	Sessions     agent.SessionService
	MaxBodyChars int
	Timeout      time.Duration
	Metrics      *instrumentation.Metrics
	Logger       *slog.Logger
}

// Triager runs one classification session per message.
type Triager struct {
	runner       AgentRunner
	sessions     agent.SessionService
	maxBodyChars int
	timeout      time.Duration
	metrics      *instrumentation.Metrics
	logger       *slog.Logger
}

// NewTriager returns a Triager.
func NewTriager(cfg TriagerConfig) (*Triager, error) {
	if cfg.Runner == nil || cfg.Sessions == nil {
		return nil, errors.New("triage: agent runner and session service are required")
	}
	if cfg.MaxBodyChars <= 0 {
		cfg.MaxBodyChars = DefaultMaxBodyChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAgentTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Triager{
		runner:       cfg.Runner,
		sessions:     cfg.Sessions,
		maxBodyChars: cfg.MaxBodyChars,
		timeout:      cfg.Timeout,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}, nil
}

// Triage classifies rec. It always returns a result: failures of any kind,
// panics included, end in OutcomeNoAction and never in a trash call. The
// agent session is deleted before Triage returns.
func (t *Triager) Triage(ctx context.Context, runID string, rec mailbox.Record, sink Sink) (res SessionResult) {
	sessionID := SessionID(rec.ID)
	res = SessionResult{MessageID: rec.ID, SessionID: sessionID, Outcome: OutcomeNoAction}
	logger := logging.WithSession(t.logger, rec.ID, sessionID).With(logging.KeyRunID, runID)

	ctx, span := instrumentation.StartSessionSpan(ctx, rec.ID, sessionID)
	start := time.Now()

	logf(sink, "\n>>> Analyzing Email ID: %s", rec.ID)
	logf(sink, "    Subject: %s...", truncateRunes(rec.Subject, 100))

	defer func() {
		if p := recover(); p != nil {
			stack := string(debug.Stack())
			logger.Error("triage session panicked", "panic", p, "stack", stack)
			logf(sink, "  [Error] Unexpected failure while analyzing %s: %v", rec.ID, p)
			sink.Log(stack)
			res.Outcome = OutcomeNoAction
			res.Err = fmt.Errorf("session panicked: %v", p)
		}
		res.Duration = time.Since(start)
		t.metrics.RecordSession(ctx, res.Outcome.metricLabel(), res.Duration)
		if res.Err != nil {
			instrumentation.SetSpanError(span, res.Err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		span.End()
	}()

	_, err := t.sessions.Create(ctx, sessionID, map[string]any{
		StateMessageID: rec.ID,
		StateRunID:     runID,
		StateSender:    rec.Sender,
		StateSubject:   rec.Subject,
	})
	if err != nil {
		logger.Error("creating agent session failed", logging.Err(err))
		logf(sink, "  [Error] Could not start analysis for %s: %v", rec.ID, err)
		res.Err = err
		return res
	}
	defer func() {
		// Deletion must not inherit a cancelled run context.
		if err := t.sessions.Delete(context.WithoutCancel(ctx), sessionID); err != nil {
			logger.Warn("deleting agent session failed", logging.Err(err))
			logf(sink, "  [Warning] Error deleting session %s: %v", sessionID, err)
		}
	}()

	t.await(ctx, rec, &res, logger, sink)
	return res
}

func (t *Triager) await(ctx context.Context, rec mailbox.Record, res *SessionResult, logger *slog.Logger, sink Sink) {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	// Cancelling stops the runner from producing further events.
	defer cancel()

	events, err := t.runner.Run(runCtx, res.SessionID, BuildPrompt(rec, t.maxBodyChars))
	if err != nil {
		t.fail(res, fmt.Errorf("starting agent: %w", err), logger, sink)
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if runCtx.Err() != nil {
					t.fail(res, t.stopped(ctx, runCtx), logger, sink)
					return
				}
				res.Response = noResponse
				logf(sink, "<<< Agent Final Thought: %s", noResponse)
				return
			}
			if t.handle(ev, res, logger, sink) {
				return
			}
		case <-runCtx.Done():
			t.fail(res, t.stopped(ctx, runCtx), logger, sink)
			return
		}
	}
}

// stopped describes why runCtx ended: the run itself was cancelled, or the
// per-session timeout elapsed.
func (t *Triager) stopped(ctx, runCtx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session cancelled: %w", err)
	}
	return fmt.Errorf("agent did not answer within %s: %w", t.timeout, runCtx.Err())
}

// handle applies ev to res and reports whether it was terminal.
func (t *Triager) handle(ev agent.Event, res *SessionResult, logger *slog.Logger, sink Sink) bool {
	switch ev.Kind {
	case agent.EventToolCall:
		call := ev.ToolCall
		if call == nil || call.Name != TrashToolName {
			return false
		}
		inv := &Invocation{MessageID: res.MessageID, Status: StatusError}
		switch r := call.Result.(type) {
		case TrashResult:
			inv.Status, inv.Detail = r.Status, r.Message
		default:
			if call.Err != nil {
				inv.Detail = call.Err.Error()
			}
		}
		res.Outcome = OutcomeToolInvoked
		res.Invocation = inv
		logf(sink, "  [Tool Result] Status: %s, Msg: %s", inv.Status, inv.Detail)
		logger.Info("agent invoked trash tool",
			logging.Outcome(string(res.Outcome)),
			logging.Status(inv.Status))
		return true

	case agent.EventFinal:
		res.Outcome = OutcomeNoAction
		res.Response = ev.Text
		logf(sink, "<<< Agent Final Thought: %s", ev.Text)
		logger.Info("agent finished without action", logging.Outcome(string(res.Outcome)))
		return true

	case agent.EventError:
		t.fail(res, ev.Err, logger, sink)
		return true
	}
	return false
}

func (t *Triager) fail(res *SessionResult, err error, logger *slog.Logger, sink Sink) {
	res.Outcome = OutcomeNoAction
	res.Err = err
	logger.Error("agent session failed", logging.Err(err))
	logf(sink, "  [Error] Agent failed for %s: %v", res.MessageID, err)
}
