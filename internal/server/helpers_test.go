package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teemow/rejectfewer/internal/agent"
	"github.com/teemow/rejectfewer/internal/mailbox"
	"github.com/teemow/rejectfewer/internal/store"
	"github.com/teemow/rejectfewer/internal/triage"
)

const (
	testWait = 2 * time.Second
	testTick = 10 * time.Millisecond
)

type stubGateway struct {
	mu      sync.Mutex
	records []mailbox.Record
	// block, when set, holds ListUnread until it is closed.
	block chan struct{}
}

func (g *stubGateway) ListUnread(ctx context.Context, _ string, limit int64) ([]string, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []string
	for _, r := range g.records {
		if int64(len(ids)) == limit {
			break
		}
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (g *stubGateway) Fetch(_ context.Context, id string) (mailbox.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.records {
		if r.ID == id {
			return r, nil
		}
	}
	return mailbox.Record{}, mailbox.ErrNotFound
}

func (g *stubGateway) Trash(context.Context, string) error { return nil }

// keepRunner never calls a tool.
type keepRunner struct{}

func (keepRunner) Run(_ context.Context, sessionID, _ string) (<-chan agent.Event, error) {
	ch := make(chan agent.Event, 1)
	ch <- agent.Event{Kind: agent.EventFinal, SessionID: sessionID, Text: "Not a rejection."}
	close(ch)
	return ch, nil
}

func testRecords() []mailbox.Record {
	return []mailbox.Record{
		{ID: "m1", Subject: "Weekly digest", Sender: "news@example.com", Body: "Top stories."},
		{ID: "m2", Subject: "Lunch?", Sender: "friend@example.org", Body: "Noon works."},
	}
}

func newTestHistory(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestContext(t *testing.T, gw mailbox.Gateway, history History) *ServerContext {
	t.Helper()

	triager, err := triage.NewTriager(triage.TriagerConfig{
		Runner:   keepRunner{},
		Sessions: agent.NewInMemorySessionService(),
	})
	require.NoError(t, err)

	handle := triage.NewConnectedHandle(gw)
	var recorder triage.HistoryRecorder
	if history != nil {
		recorder = history
	}
	orch, err := triage.NewOrchestrator(triage.OrchestratorConfig{
		Handle:  handle,
		Triager: triager,
		Options: triage.Options{Credential: "test-key"},
		History: recorder,
	})
	require.NoError(t, err)

	sc, err := NewServerContext(context.Background(), Dependencies{
		Orchestrator: orch,
		Handle:       handle,
		History:      history,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}
