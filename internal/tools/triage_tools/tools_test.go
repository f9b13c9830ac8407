package triage_tools

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rejectfewer/internal/agent"
	"github.com/teemow/rejectfewer/internal/mailbox"
	"github.com/teemow/rejectfewer/internal/server"
	"github.com/teemow/rejectfewer/internal/store"
	"github.com/teemow/rejectfewer/internal/tools/batch"
	"github.com/teemow/rejectfewer/internal/triage"
)

// restorableMailbox supports Untrash like the Gmail client.
type restorableMailbox struct {
	mu       sync.Mutex
	records  []mailbox.Record
	restored []string
}

func (m *restorableMailbox) ListUnread(_ context.Context, _ string, limit int64) ([]string, error) {
	var ids []string
	for _, r := range m.records {
		if int64(len(ids)) == limit {
			break
		}
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (m *restorableMailbox) Fetch(_ context.Context, id string) (mailbox.Record, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return mailbox.Record{}, mailbox.ErrNotFound
}

func (m *restorableMailbox) Trash(context.Context, string) error { return nil }

func (m *restorableMailbox) Untrash(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "missing" {
		return mailbox.ErrNotFound
	}
	m.restored = append(m.restored, id)
	return nil
}

type keepRunner struct{}

func (keepRunner) Run(_ context.Context, sessionID, _ string) (<-chan agent.Event, error) {
	ch := make(chan agent.Event, 1)
	ch <- agent.Event{Kind: agent.EventFinal, SessionID: sessionID, Text: "Not a rejection."}
	close(ch)
	return ch, nil
}

func records() []mailbox.Record {
	return []mailbox.Record{
		{ID: "m1", Subject: "Your application", Sender: "jobs@acme.example", Date: "Mon, 2 Jun 2025 10:00:00 +0000"},
		{ID: "m2", Subject: "Newsletter", Sender: "news@example.com", SnippetFallback: true},
	}
}

func newContext(t *testing.T, gw mailbox.Gateway, history server.History) *server.ServerContext {
	t.Helper()
	triager, err := triage.NewTriager(triage.TriagerConfig{Runner: keepRunner{}, Sessions: agent.NewInMemorySessionService()})
	require.NoError(t, err)
	handle := triage.NewConnectedHandle(gw)
	var recorder triage.HistoryRecorder
	if history != nil {
		recorder = history
	}
	orch, err := triage.NewOrchestrator(triage.OrchestratorConfig{
		Handle:  handle,
		Triager: triager,
		History: recorder,
		Options: triage.Options{Credential: "test-key", MaxMessages: 5},
	})
	require.NoError(t, err)
	sc, err := server.NewServerContext(context.Background(), server.Dependencies{
		Orchestrator: orch,
		Handle:       handle,
		History:      history,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func newHistory(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTrashed(t *testing.T, h *store.SQLiteStore, ids ...string) {
	t.Helper()
	var outcomes []triage.MessageOutcome
	for _, id := range ids {
		outcomes = append(outcomes, triage.MessageOutcome{
			MessageID:  id,
			Subject:    "Update on your application",
			Sender:     "careers@acme.example",
			Outcome:    string(triage.OutcomeToolInvoked),
			ToolStatus: triage.StatusSuccess,
		})
	}
	summary := triage.RunSummary{RunID: "seed", StartedAt: time.Now(), Considered: len(ids), Completed: len(ids), Trashed: len(ids)}
	require.NoError(t, h.RecordRun(context.Background(), summary, outcomes))
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestRegisterTriageTools(t *testing.T) {
	tests := []struct {
		name     string
		readOnly bool
		want     []string
	}{
		{
			name:     "read only",
			readOnly: true,
			want:     []string{"triage_history", "triage_list_candidates", "triage_list_trashed", "triage_status"},
		},
		{
			name: "write enabled",
			want: []string{"triage_history", "triage_list_candidates", "triage_list_trashed", "triage_restore", "triage_run", "triage_status"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))
			require.NoError(t, RegisterTriageTools(s, newContext(t, &restorableMailbox{}, nil), tt.readOnly))

			var names []string
			for name := range s.ListTools() {
				names = append(names, name)
			}
			sort.Strings(names)
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestHandleListCandidates(t *testing.T) {
	sc := newContext(t, &restorableMailbox{records: records()}, nil)

	res, err := handleListCandidates(context.Background(), call(map[string]any{"limit": float64(1)}), sc)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var got []candidate
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "jobs@acme.example", got[0].Sender)
}

func TestHandleRunAndHistory(t *testing.T) {
	history := newHistory(t)
	sc := newContext(t, &restorableMailbox{records: records()}, history)

	res, err := handleRun(context.Background(), call(nil), sc)
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	out := text(t, res)
	assert.Contains(t, out, "Processing complete. Analyzed: 2 emails.")
	assert.Contains(t, out, `"completed": 2`)

	res, err = handleHistory(context.Background(), call(nil), sc)
	require.NoError(t, err)
	var runs []store.Run
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &runs))
	require.Len(t, runs, 1)

	res, err = handleHistory(context.Background(), call(map[string]any{"run_id": runs[0].ID}), sc)
	require.NoError(t, err)
	var outcomes []store.Outcome
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &outcomes))
	assert.Len(t, outcomes, 2)

	res, err = handleHistory(context.Background(), call(map[string]any{"run_id": "unknown"}), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = handleStatus(context.Background(), call(nil), sc)
	require.NoError(t, err)
	assert.Contains(t, text(t, res), runs[0].ID)
	assert.Contains(t, text(t, res), `"mailbox": "connected"`)
}

func TestHandleRun_Aborted(t *testing.T) {
	sc := newContext(t, &restorableMailbox{records: records()}, nil)
	require.NoError(t, sc.Handle().Close())

	res, err := handleRun(context.Background(), call(nil), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "ERROR:")
}

func TestHistoryToolsWithoutHistory(t *testing.T) {
	sc := newContext(t, &restorableMailbox{}, nil)

	for name, h := range map[string]func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error){
		"history": handleHistory,
		"trashed": handleListTrashed,
	} {
		t.Run(name, func(t *testing.T) {
			res, err := h(context.Background(), call(nil), sc)
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Equal(t, "Run history is disabled", text(t, res))
		})
	}
}

func TestHandleRestore(t *testing.T) {
	gw := &restorableMailbox{}
	history := newHistory(t)
	seedTrashed(t, history, "t1", "t2")
	sc := newContext(t, gw, history)

	res, err := handleListTrashed(context.Background(), call(nil), sc)
	require.NoError(t, err)
	var trashed []store.Outcome
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &trashed))
	require.Len(t, trashed, 2)

	res, err = handleRestore(context.Background(), call(map[string]any{"message_ids": []any{"t1", "missing", "other"}}), sc)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var br batch.BatchResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &br))
	assert.Equal(t, 3, br.Total)
	assert.Equal(t, 2, br.Successful)
	assert.Equal(t, "Email t1 moved out of Trash.", br.Results[0].Result)
	assert.Equal(t, batch.StatusError, br.Results[1].Status)
	assert.Contains(t, br.Results[2].Result, "no matching history entry")
	assert.Equal(t, []string{"t1", "other"}, gw.restored)

	remaining, err := history.Trashed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "t2", remaining[0].MessageID)
}

func TestHandleRestore_InvalidArgs(t *testing.T) {
	sc := newContext(t, &restorableMailbox{}, nil)

	res, err := handleRestore(context.Background(), call(map[string]any{}), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "message_ids is required")
}

func TestHandleRestore_Unsupported(t *testing.T) {
	sc := newContext(t, onlyGateway{&restorableMailbox{}}, nil)

	res, err := handleRestore(context.Background(), call(map[string]any{"message_ids": "42"}), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), triage.ErrRestoreUnsupported.Error())
}

// onlyGateway hides Untrash from the wrapped mailbox, like the IMAP client.
type onlyGateway struct{ mailbox.Gateway }
