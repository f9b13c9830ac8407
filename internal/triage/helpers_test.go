package triage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rejectfewer/internal/agent"
	"github.com/teemow/rejectfewer/internal/mailbox"
)

// fakeMailbox is an in-memory Gateway with Gmail-like trash semantics:
// trashing a trashed message succeeds again.
type fakeMailbox struct {
	mu        sync.Mutex
	order     []string
	records   map[string]mailbox.Record
	fetchErrs map[string]error
	listErr   error
	trashErr  error
	trashed   map[string]int
	restored  []string
	closed    bool
}

func newFakeMailbox(recs ...mailbox.Record) *fakeMailbox {
	f := &fakeMailbox{
		records:   make(map[string]mailbox.Record),
		fetchErrs: make(map[string]error),
		trashed:   make(map[string]int),
	}
	for _, r := range recs {
		f.order = append(f.order, r.ID)
		f.records[r.ID] = r
	}
	return f
}

func (f *fakeMailbox) ListUnread(_ context.Context, _ string, limit int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := append([]string(nil), f.order...)
	if int64(len(ids)) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeMailbox) Fetch(_ context.Context, id string) (mailbox.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErrs[id]; err != nil {
		return mailbox.Record{}, err
	}
	rec, ok := f.records[id]
	if !ok {
		return mailbox.Record{}, mailbox.ErrNotFound
	}
	return rec, nil
}

func (f *fakeMailbox) Trash(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trashErr != nil {
		return f.trashErr
	}
	if _, ok := f.records[id]; !ok {
		return fmt.Errorf("%w: googleapi: Error 404: Requested entity was not found", mailbox.ErrNotFound)
	}
	f.trashed[id]++
	return nil
}

func (f *fakeMailbox) Untrash(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, id)
	return nil
}

func (f *fakeMailbox) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMailbox) trashCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trashed[id]
}

var messageIDLine = regexp.MustCompile(`(?m)^Message ID: (\S+)$`)

// keywordModel calls trash_email for prompts that read like a rejection and
// answers in text otherwise. The tool result is echoed back as the final answer.
type keywordModel struct {
	mu       sync.Mutex
	requests int
	// overrideID replaces the id the model passes to the tool.
	overrideID string
}

func (m *keywordModel) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.mu.Lock()
	m.requests++
	m.mu.Unlock()

	last := req.Messages[len(req.Messages)-1]
	if last.Role == openai.ChatMessageRoleTool {
		return reply("Decision: Rejection. Action: called trash_email. Result: " + last.Content), nil
	}
	if strings.Contains(strings.ToLower(last.Content), "move forward with other candidates") {
		id := messageIDLine.FindStringSubmatch(last.Content)[1]
		if m.overrideID != "" {
			id = m.overrideID
		}
		return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:       "call_1",
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: TrashToolName, Arguments: `{"message_id":"` + id + `"}`},
				}},
			},
		}}}, nil
	}
	return reply("Decision: Not Rejection. Action: None."), nil
}

func reply(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text},
	}}}
}

// recordingSink collects lines.
type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) Log(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *recordingSink) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}

type pipeline struct {
	mailbox  *fakeMailbox
	handle   *MailboxHandle
	sessions *agent.InMemorySessionService
	triager  *Triager
	model    *keywordModel
}

func newPipeline(t *testing.T, gw mailbox.Gateway, fm *fakeMailbox, dryRun bool) *pipeline {
	t.Helper()
	handle := NewConnectedHandle(gw)
	gate := NewGate(handle, nil)

	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(TrashTool(), NewTrashHandler(gate, TrashHandlerOptions{DryRun: dryRun})))

	sessions := agent.NewInMemorySessionService()
	model := &keywordModel{}
	runner, err := agent.NewRunner(agent.RunnerConfig{
		Client:      model,
		Instruction: Instruction,
		Registry:    reg,
		Sessions:    sessions,
	})
	require.NoError(t, err)

	triager, err := NewTriager(TriagerConfig{Runner: runner, Sessions: sessions})
	require.NoError(t, err)

	return &pipeline{mailbox: fm, handle: handle, sessions: sessions, triager: triager, model: model}
}

func rejection(id string) mailbox.Record {
	return mailbox.Record{
		ID:      id,
		Subject: "Update on Your Application",
		Sender:  "Acme Talent <talent@acme.example>",
		Body:    "Thank you for your interest. Unfortunately we have decided to move forward with other candidates.",
	}
}

func newsletter(id string) mailbox.Record {
	return mailbox.Record{
		ID:      id,
		Subject: "Weekly engineering digest",
		Sender:  "news@example.org",
		Body:    "This week: ten tips for faster builds and a look at new tooling.",
	}
}
