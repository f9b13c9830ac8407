package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/store"
	"github.com/teemow/rejectfewer/internal/triage"
)

// ErrShutdown is returned for work requested after Shutdown.
var ErrShutdown = errors.New("server is shutting down")

// History is the run history the server exposes. *store.SQLiteStore
// implements it.
type History interface {
	triage.HistoryRecorder
	Runs(ctx context.Context, limit int) ([]store.Run, error)
	Outcomes(ctx context.Context, runID string) ([]store.Outcome, error)
	Trashed(ctx context.Context, limit int) ([]store.Outcome, error)
	MarkRestored(ctx context.Context, messageID string, at time.Time) error
}

// Dependencies are the long-lived components a ServerContext shares between
// its transports.
type Dependencies struct {
	Orchestrator *triage.Orchestrator
	Handle       *triage.MailboxHandle
	// History may be nil when run history is disabled.
	History History
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
}

// ServerContext holds the triage pipeline shared by the MCP tools and the
// HTTP endpoints of the serve command.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	deps   Dependencies

	mu       sync.RWMutex
	lastRun  *triage.RunSummary
	shutdown bool
}

// NewServerContext creates a new server context. The orchestrator and the
// mailbox handle are required.
func NewServerContext(ctx context.Context, deps Dependencies) (*ServerContext, error) {
	if deps.Orchestrator == nil {
		return nil, errors.New("server: orchestrator is required")
	}
	if deps.Handle == nil {
		return nil, errors.New("server: mailbox handle is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		deps:   deps,
	}, nil
}

// Context returns the server context. It is cancelled by Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

func (sc *ServerContext) Orchestrator() *triage.Orchestrator { return sc.deps.Orchestrator }

func (sc *ServerContext) Handle() *triage.MailboxHandle { return sc.deps.Handle }

// History returns the run history, or nil when it is disabled.
func (sc *ServerContext) History() History { return sc.deps.History }

func (sc *ServerContext) Metrics() *instrumentation.Metrics { return sc.deps.Metrics }

func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger { return sc.deps.Audit }

func (sc *ServerContext) Logger() *slog.Logger { return sc.deps.Logger }

// RunTriage executes one orchestrator run bound to both ctx and the server
// lifetime, and remembers its summary for the health endpoints.
func (sc *ServerContext) RunTriage(ctx context.Context, sink triage.Sink) (triage.RunSummary, error) {
	if sc.IsShutdown() {
		return triage.RunSummary{}, ErrShutdown
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sc.ctx, cancel)
	defer stop()

	summary, err := sc.deps.Orchestrator.Run(ctx, sink)
	if errors.Is(err, triage.ErrRunInProgress) {
		return summary, err
	}

	sc.mu.Lock()
	sc.lastRun = &summary
	sc.mu.Unlock()
	return summary, err
}

// LastRun returns the summary of the most recent run started through this
// context.
func (sc *ServerContext) LastRun() (triage.RunSummary, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.lastRun == nil {
		return triage.RunSummary{}, false
	}
	return *sc.lastRun, true
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels in-flight runs and closes the mailbox connection.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	sc.cancel()
	return sc.deps.Handle.Close()
}
