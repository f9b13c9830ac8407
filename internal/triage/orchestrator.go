package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/logging"
	"github.com/teemow/rejectfewer/internal/mailbox"
)

// Run defaults.
const (
	DefaultMaxMessages  = 15
	DefaultFetchDelay   = 100 * time.Millisecond
	DefaultSessionDelay = time.Second
)

// PlaceholderCredential is the sample value shipped in example configs.
const PlaceholderCredential = "YOUR_GOOGLE_API_KEY_HERE"

var (
	ErrMissingCredential = errors.New("classification API key is not configured")
	ErrRunInProgress     = errors.New("a triage run is already in progress")
)

// RunSummary aggregates one run.
type RunSummary struct {
	RunID string `json:"run_id"`
	// Considered counts listed message ids.
	Considered int `json:"considered"`
	// Completed counts finished sessions, whatever their outcome.
	Completed int `json:"completed"`
	Trashed   int `json:"trashed"`
	// Skipped counts messages whose fetch failed.
	Skipped int `json:"skipped"`
	// Failed counts sessions that ended in NO_ACTION because of an error.
	Failed    int           `json:"failed"`
	DryRun    bool          `json:"dry_run,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	// Error is set when the run was aborted.
	Error string `json:"error,omitempty"`
}

// Line is the human-readable summary.
func (s RunSummary) Line() string {
	return fmt.Sprintf("Processing complete. Analyzed: %d emails.", s.Completed)
}

// MessageOutcome is the per-message history entry of a run.
type MessageOutcome struct {
	MessageID       string
	Subject         string
	Sender          string
	Outcome         string
	ToolStatus      string
	Detail          string
	SnippetFallback bool
}

// Outcome values recorded for messages that never reached a session.
const OutcomeSkipped = "SKIPPED"

// HistoryRecorder persists finished runs.
type HistoryRecorder interface {
	RecordRun(ctx context.Context, summary RunSummary, outcomes []MessageOutcome) error
}

// Options tune a run.
type Options struct {
	Query        string
	MaxMessages  int64
	FetchDelay   time.Duration
	SessionDelay time.Duration
	// Credential is the classification API key; checked before each run.
	Credential string
	DryRun     bool
	// AuthHint is shown when connecting to the mailbox fails.
	AuthHint string
}

func (o *Options) applyDefaults() {
	if o.Query == "" {
		o.Query = mailbox.DefaultQuery
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = DefaultMaxMessages
	}
	if o.FetchDelay < 0 {
		o.FetchDelay = 0
	}
	if o.SessionDelay < 0 {
		o.SessionDelay = 0
	}
}

// OrchestratorConfig wires an Orchestrator.
type OrchestratorConfig struct {
	Handle  *MailboxHandle
	Triager *Triager
	Options Options
	History HistoryRecorder
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Orchestrator runs the whole pipeline. At most one run is active at a time.
type Orchestrator struct {
	handle  *MailboxHandle
	triager *Triager
	opts    Options
	history HistoryRecorder
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	running atomic.Bool
}

// NewOrchestrator validates cfg and returns an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Handle == nil {
		return nil, errors.New("triage: mailbox handle is required")
	}
	if cfg.Triager == nil {
		return nil, errors.New("triage: triager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Options.applyDefaults()
	return &Orchestrator{
		handle:  cfg.Handle,
		triager: cfg.Triager,
		opts:    cfg.Options,
		history: cfg.History,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// Options returns the effective run options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Running reports whether a run is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Run executes one triage pass and reports progress to sink. Connectivity,
// credential and listing problems abort the run with an error; problems with
// a single message are logged and the run continues. The summary line is
// written to sink in every case except ErrRunInProgress.
func (o *Orchestrator) Run(ctx context.Context, sink Sink) (summary RunSummary, err error) {
	if !o.running.CompareAndSwap(false, true) {
		return RunSummary{}, ErrRunInProgress
	}
	defer o.running.Store(false)

	if sink == nil {
		sink = Discard
	}
	summary = RunSummary{RunID: uuid.NewString(), StartedAt: time.Now(), DryRun: o.opts.DryRun}
	logger := logging.WithRun(o.logger, summary.RunID)

	ctx, span := instrumentation.StartRunSpan(ctx, summary.RunID)
	var outcomes []MessageOutcome

	defer func() {
		summary.Duration = time.Since(summary.StartedAt)
		result := instrumentation.RunResultCompleted
		if err != nil {
			result = instrumentation.RunResultAborted
			summary.Error = err.Error()
			instrumentation.SetSpanError(span, err)
			logf(sink, "ERROR: %v", err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		o.metrics.RecordRun(ctx, result)
		span.End()

		o.record(ctx, logger, summary, outcomes)

		logf(sink, "\n--- Finished ---\n%s", summary.Line())
		if summary.Considered > 0 {
			logf(sink, "Considered: %d, Trashed: %d, Skipped: %d, Failed: %d",
				summary.Considered, summary.Trashed, summary.Skipped, summary.Failed)
		}
		logger.Info("triage run finished",
			slog.Int("considered", summary.Considered),
			slog.Int("completed", summary.Completed),
			slog.Int("trashed", summary.Trashed),
			slog.Int("skipped", summary.Skipped),
			slog.Int("failed", summary.Failed),
			slog.Duration(logging.KeyDuration, summary.Duration),
			logging.Err(err))
	}()

	sink.Log("--- Starting Email Rejection Processor ---")
	if o.opts.DryRun {
		sink.Log("Dry run: messages classified as rejections will not be moved.")
	}

	gw, err := o.connect(ctx, sink, logger)
	if err != nil {
		return summary, err
	}

	if err := o.checkCredential(); err != nil {
		return summary, err
	}
	sink.Log("API key seems configured.")

	records, skipped, err := o.fetchAll(ctx, gw, sink, logger)
	summary.Considered = len(records) + len(skipped)
	summary.Skipped = len(skipped)
	outcomes = append(outcomes, skipped...)
	if err != nil {
		return summary, err
	}

	if len(records) == 0 {
		sink.Log("No emails fetched to analyze.")
		return summary, nil
	}

	logf(sink, "--- Analyzing %d Emails ---", len(records))
	for i, rec := range records {
		if i > 0 {
			if err := sleep(ctx, o.opts.SessionDelay); err != nil {
				return summary, fmt.Errorf("run cancelled: %w", err)
			}
		}
		res := o.triager.Triage(ctx, summary.RunID, rec, sink)
		summary.Completed++
		if res.Trashed() {
			summary.Trashed++
		}
		if res.Err != nil {
			summary.Failed++
		}
		outcomes = append(outcomes, outcomeOf(rec, res))
	}
	return summary, nil
}

func (o *Orchestrator) connect(ctx context.Context, sink Sink, logger *slog.Logger) (mailbox.Gateway, error) {
	if o.handle.Connected() {
		sink.Log("Using existing mailbox connection.")
		return o.handle.Ensure(ctx)
	}
	sink.Log("Connecting to mailbox...")
	gw, err := o.handle.Ensure(ctx)
	if err != nil {
		logger.Error("mailbox connection failed", logging.Err(err))
		if o.opts.AuthHint != "" {
			logf(sink, "  Hint: %s", o.opts.AuthHint)
		}
		return nil, fmt.Errorf("%w: %w", ErrNoConnection, err)
	}
	sink.Log("Mailbox connection established.")
	return gw, nil
}

func (o *Orchestrator) checkCredential() error {
	key := strings.TrimSpace(o.opts.Credential)
	if key == "" || key == PlaceholderCredential {
		return ErrMissingCredential
	}
	return nil
}

// fetchAll lists unread ids and fetches each one. Fetch failures are returned
// as skipped outcomes; only a listing failure is an error.
func (o *Orchestrator) fetchAll(ctx context.Context, gw mailbox.Gateway, sink Sink, logger *slog.Logger) ([]mailbox.Record, []MessageOutcome, error) {
	logf(sink, "Searching mailbox: '%s' (limit: %d)", o.opts.Query, o.opts.MaxMessages)
	ids, err := gw.ListUnread(ctx, o.opts.Query, o.opts.MaxMessages)
	if err != nil {
		logger.Error("listing messages failed", logging.Err(err))
		return nil, nil, fmt.Errorf("listing unread messages: %w", err)
	}
	if len(ids) == 0 {
		sink.Log("No new messages found matching the query.")
		return nil, nil, nil
	}

	logf(sink, "Found %d emails. Fetching details...", len(ids))
	var (
		records []mailbox.Record
		skipped []MessageOutcome
	)
	for _, id := range ids {
		if err := sleep(ctx, o.opts.FetchDelay); err != nil {
			return records, skipped, fmt.Errorf("run cancelled: %w", err)
		}
		rec, err := gw.Fetch(ctx, id)
		if err != nil {
			logger.Warn("skipping message", logging.MessageID(id), logging.Err(err))
			logf(sink, "  Skipping message %s due to fetch error: %v", id, err)
			skipped = append(skipped, MessageOutcome{MessageID: id, Outcome: OutcomeSkipped, Detail: err.Error()})
			continue
		}
		if rec.SnippetFallback {
			logger.Debug("no text/plain part, using snippet", logging.MessageID(id))
			logf(sink, "  Note: %s has no plain text body, using snippet.", id)
		}
		records = append(records, rec)
	}
	logf(sink, "Fetched details for %d emails.", len(records))
	return records, skipped, nil
}

// Preview lists and fetches candidates without classifying them.
func (o *Orchestrator) Preview(ctx context.Context, limit int64) ([]mailbox.Record, error) {
	if limit <= 0 {
		limit = o.opts.MaxMessages
	}
	gw, err := o.handle.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoConnection, err)
	}
	ids, err := gw.ListUnread(ctx, o.opts.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unread messages: %w", err)
	}
	records := make([]mailbox.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := gw.Fetch(ctx, id)
		if err != nil {
			o.logger.Warn("preview fetch failed", logging.MessageID(id), logging.Err(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, summary RunSummary, outcomes []MessageOutcome) {
	if o.history == nil {
		return
	}
	if err := o.history.RecordRun(context.WithoutCancel(ctx), summary, outcomes); err != nil {
		logger.Warn("saving run history failed", logging.Err(err))
	}
}

func outcomeOf(rec mailbox.Record, res SessionResult) MessageOutcome {
	out := MessageOutcome{
		MessageID:       rec.ID,
		Subject:         rec.Subject,
		Sender:          rec.Sender,
		Outcome:         string(res.Outcome),
		Detail:          res.Response,
		SnippetFallback: rec.SnippetFallback,
	}
	if res.Invocation != nil {
		out.ToolStatus = res.Invocation.Status
		out.Detail = res.Invocation.Detail
	}
	if res.Err != nil {
		out.Detail = res.Err.Error()
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
