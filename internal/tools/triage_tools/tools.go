package triage_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/rejectfewer/internal/server"
	"github.com/teemow/rejectfewer/internal/store"
	"github.com/teemow/rejectfewer/internal/tools/batch"
	"github.com/teemow/rejectfewer/internal/tools/common"
	"github.com/teemow/rejectfewer/internal/triage"
)

const defaultHistoryLimit = 10

// RegisterTriageTools registers the triage tools with the MCP server. Tools
// that modify the mailbox are only registered when readOnly is false.
func RegisterTriageTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	statusTool := mcp.NewTool("triage_status",
		mcp.WithDescription("Report whether a triage run is in progress, the mailbox connection state and the last run summary"),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("triage_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleStatus(ctx, request, sc)
		}))

	listTool := mcp.NewTool("triage_list_candidates",
		mcp.WithDescription("List the unread messages the next triage run would analyze, without classifying or changing them"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to list (default: the configured run limit)"),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("triage_list_candidates", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListCandidates(ctx, request, sc)
		}))

	historyTool := mcp.NewTool("triage_history",
		mcp.WithDescription("List recent triage runs, or the per-message outcomes of one run"),
		mcp.WithString("run_id",
			mcp.Description("Run id to show outcomes for. Omit to list runs."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs to list (default: 10)"),
		),
	)
	s.AddTool(historyTool, common.InstrumentedToolHandler("triage_history", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleHistory(ctx, request, sc)
		}))

	trashedTool := mcp.NewTool("triage_list_trashed",
		mcp.WithDescription("List messages moved to Trash by past runs that have not been restored"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to list (default: 10)"),
		),
	)
	s.AddTool(trashedTool, common.InstrumentedToolHandler("triage_list_trashed", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListTrashed(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	runTool := mcp.NewTool("triage_run",
		mcp.WithDescription("Run one triage pass: classify unread messages and move job application rejections to Trash. Returns the run log and summary."),
	)
	s.AddTool(runTool, common.AuditedToolHandler("triage_run", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRun(ctx, request, sc)
		}))

	restoreTool := mcp.NewTool("triage_restore",
		mcp.WithDescription("Move messages trashed by a triage run back out of Trash"),
		mcp.WithString("message_ids",
			mcp.Required(),
			mcp.Description("Message id (string) or array of message ids to restore"),
		),
	)
	s.AddTool(restoreTool, common.AuditedToolHandler("triage_restore", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRestore(ctx, request, sc)
		}))

	return nil
}

func limitArg(args map[string]any, def int) int {
	if v, ok := args["limit"].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

type statusResponse struct {
	Running bool               `json:"running"`
	Mailbox string             `json:"mailbox"`
	LastRun *triage.RunSummary `json:"last_run,omitempty"`
	Options statusRunOptions   `json:"options"`
}

type statusRunOptions struct {
	Query       string `json:"query"`
	MaxMessages int64  `json:"max_messages"`
	DryRun      bool   `json:"dry_run"`
}

func handleStatus(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	opts := sc.Orchestrator().Options()
	resp := statusResponse{
		Running: sc.Orchestrator().Running(),
		Mailbox: "not connected",
		Options: statusRunOptions{Query: opts.Query, MaxMessages: opts.MaxMessages, DryRun: opts.DryRun},
	}
	if sc.Handle().Connected() {
		resp.Mailbox = "connected"
	}
	if last, ok := sc.LastRun(); ok {
		resp.LastRun = &last
	}
	return jsonResult(resp)
}

type candidate struct {
	ID              string `json:"id"`
	Subject         string `json:"subject"`
	Sender          string `json:"sender"`
	Date            string `json:"date,omitempty"`
	SnippetFallback bool   `json:"snippet_fallback,omitempty"`
}

func handleListCandidates(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	limit := limitArg(request.GetArguments(), 0)

	records, err := sc.Orchestrator().Preview(ctx, int64(limit))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list candidates: %v", err)), nil
	}

	out := make([]candidate, 0, len(records))
	for _, r := range records {
		out = append(out, candidate{
			ID:              r.ID,
			Subject:         r.Subject,
			Sender:          r.Sender,
			Date:            r.Date,
			SnippetFallback: r.SnippetFallback,
		})
	}
	return jsonResult(out)
}

func handleHistory(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	history := sc.History()
	if history == nil {
		return mcp.NewToolResultError("Run history is disabled"), nil
	}
	args := request.GetArguments()

	if runID, ok := args["run_id"].(string); ok && runID != "" {
		outcomes, err := history.Outcomes(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read outcomes: %v", err)), nil
		}
		if len(outcomes) == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("No outcomes recorded for run %s", runID)), nil
		}
		return jsonResult(outcomes)
	}

	runs, err := history.Runs(ctx, limitArg(args, defaultHistoryLimit))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read runs: %v", err)), nil
	}
	if runs == nil {
		runs = []store.Run{}
	}
	return jsonResult(runs)
}

func handleListTrashed(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	history := sc.History()
	if history == nil {
		return mcp.NewToolResultError("Run history is disabled"), nil
	}
	trashed, err := history.Trashed(ctx, limitArg(request.GetArguments(), defaultHistoryLimit))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read trashed messages: %v", err)), nil
	}
	if trashed == nil {
		trashed = []store.Outcome{}
	}
	return jsonResult(trashed)
}

// lineBuffer collects the run log for the tool result.
type lineBuffer struct {
	mu    sync.Mutex
	lines []string
}

func (b *lineBuffer) Log(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
}

func (b *lineBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

func handleRun(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	var buf lineBuffer
	summary, err := sc.RunTriage(ctx, &buf)
	if errors.Is(err, triage.ErrRunInProgress) || errors.Is(err, server.ErrShutdown) {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := buf.String()
	if err != nil {
		return mcp.NewToolResultError(text), nil
	}

	b, _ := json.MarshalIndent(summary, "", "  ")
	return mcp.NewToolResultText(text + "\n\n" + string(b)), nil
}

func handleRestore(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	ids, err := batch.ParseStringOrArray(args["message_ids"], "message_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.ProcessBatch(ctx, ids, func(ctx context.Context, id string) (string, error) {
		return restore(ctx, sc, id)
	})
	br := batch.Summarize(results)
	out, _ := json.MarshalIndent(br, "", "  ")
	if br.Successful == 0 {
		return mcp.NewToolResultError(string(out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func restore(ctx context.Context, sc *server.ServerContext, id string) (string, error) {
	if err := sc.Handle().Restore(ctx, id); err != nil {
		return "", err
	}
	history := sc.History()
	if history == nil {
		return fmt.Sprintf("Email %s moved out of Trash.", id), nil
	}
	err := history.MarkRestored(ctx, id, time.Now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Sprintf("Email %s moved out of Trash (no matching history entry).", id), nil
	case err != nil:
		sc.Logger().Warn("marking message restored failed", "message_id", id, "error", err)
		return fmt.Sprintf("Email %s moved out of Trash; history not updated: %v", id, err), nil
	}
	return fmt.Sprintf("Email %s moved out of Trash.", id), nil
}
