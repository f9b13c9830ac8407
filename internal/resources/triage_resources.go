package resources

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/rejectfewer/internal/server"
	"github.com/teemow/rejectfewer/internal/triage"
)

const (
	InstructionURI = "triage://instruction"
	LatestRunURI   = "triage://runs/latest"
	ProfileURI     = "triage://mailbox/profile"
)

// errNoRuns is returned by the latest run resource before the first run.
var errNoRuns = errors.New("no triage run has completed yet")

// profiler is implemented by gateways that can describe their account.
type profiler interface {
	Profile(ctx context.Context) (string, error)
	Labels(ctx context.Context) ([]string, error)
}

// RegisterTriageResources registers the triage resources with the MCP server.
func RegisterTriageResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	instruction := mcp.NewResource(
		InstructionURI,
		"Classification Instruction",
		mcp.WithResourceDescription("The instruction the classification agent receives before each message"),
		mcp.WithMIMEType("text/plain"),
	)
	s.AddResource(instruction, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "text/plain",
				Text:     triage.Instruction,
			},
		}, nil
	})

	latest := mcp.NewResource(
		LatestRunURI,
		"Latest Triage Run",
		mcp.WithResourceDescription("Summary of the most recent triage run"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(latest, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleLatestRun(ctx, request, sc)
	})

	profile := mcp.NewResource(
		ProfileURI,
		"Mailbox Profile",
		mcp.WithResourceDescription("Address and labels of the connected Gmail account"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(profile, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleProfile(ctx, request, sc)
	})

	return nil
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

// handleLatestRun prefers the run finished by this process and falls back to
// the stored history.
func handleLatestRun(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	if last, ok := sc.LastRun(); ok {
		return jsonContents(request.Params.URI, last)
	}
	history := sc.History()
	if history == nil {
		return nil, errNoRuns
	}
	runs, err := history.Runs(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read run history: %w", err)
	}
	if len(runs) == 0 {
		return nil, errNoRuns
	}
	return jsonContents(request.Params.URI, runs[0])
}

type profileData struct {
	Address string   `json:"address"`
	Labels  []string `json:"labels"`
}

func handleProfile(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	gw, err := sc.Handle().Ensure(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := gw.(profiler)
	if !ok {
		return nil, errors.New("the configured mailbox does not expose a profile")
	}

	address, err := p.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox profile: %w", err)
	}
	labels, err := p.Labels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return jsonContents(request.Params.URI, profileData{Address: address, Labels: labels})
}
