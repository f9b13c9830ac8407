package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/rejectfewer/internal/agent"
	"github.com/teemow/rejectfewer/internal/mailbox"
	"github.com/teemow/rejectfewer/internal/resources"
	"github.com/teemow/rejectfewer/internal/server"
	"github.com/teemow/rejectfewer/internal/triage"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools and resources.
This command introspects the registered tools and outputs their documentation
in markdown format, so the documentation stays in sync with the actual tool
implementations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

// idleRunner stands in for the agent when only the tool definitions are needed.
type idleRunner struct{}

func (idleRunner) Run(context.Context, string, string) (<-chan agent.Event, error) {
	ch := make(chan agent.Event)
	close(ch)
	return ch, nil
}

// docsServerContext builds a server context that never touches a mailbox.
func docsServerContext(ctx context.Context) (*server.ServerContext, error) {
	triager, err := triage.NewTriager(triage.TriagerConfig{Runner: idleRunner{}, Sessions: agent.NewInMemorySessionService()})
	if err != nil {
		return nil, err
	}
	handle := triage.NewMailboxHandle(func(context.Context) (mailbox.Gateway, error) {
		return nil, fmt.Errorf("no mailbox while generating docs")
	})
	orch, err := triage.NewOrchestrator(triage.OrchestratorConfig{Handle: handle, Triager: triager})
	if err != nil {
		return nil, err
	}
	return server.NewServerContext(ctx, server.Dependencies{Orchestrator: orch, Handle: handle})
}

func runGenerateDocs(stdout, stderr io.Writer, outputFile string) error {
	sc, err := docsServerContext(context.Background())
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() { _ = sc.Shutdown() }()

	// Register the write tools too so every tool is documented.
	mcpSrv, err := newMCPServer(sc, false)
	if err != nil {
		return err
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
	}

	markdown := generateToolsMarkdown(tools)

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(stderr, "Documentation written to: %s\n", outputFile)
		return nil
	}
	_, err = io.WriteString(stdout, markdown)
	return err
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("This document provides a complete reference of all tools available when running rejectfewer as an MCP server.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	toolsByCategory := groupToolsByCategory(tools)

	sb.WriteString("## Table of Contents\n\n")
	categories := make([]string, 0, len(toolsByCategory))
	for category := range toolsByCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		anchor := strings.ToLower(strings.ReplaceAll(category, " ", "-"))
		fmt.Fprintf(&sb, "- [%s](#%s)\n", category, anchor)
	}
	sb.WriteString("- [Resources](#resources)\n\n")

	sb.WriteString("## Read-Only Mode\n\n")
	sb.WriteString("`rejectfewer serve` registers only the read-only tools unless it is started with `--yolo`. ")
	sb.WriteString("`triage_run` and `triage_restore` change the mailbox and are marked below.\n\n")

	for _, category := range categories {
		categoryTools := toolsByCategory[category]
		sort.Slice(categoryTools, func(i, j int) bool {
			return categoryTools[i].Name < categoryTools[j].Name
		})

		fmt.Fprintf(&sb, "## %s\n\n", category)
		for _, tool := range categoryTools {
			sb.WriteString(generateToolMarkdown(tool))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("## Resources\n\n")
	fmt.Fprintf(&sb, "- `%s`: the instruction the classification agent receives (text/plain)\n", resources.InstructionURI)
	fmt.Fprintf(&sb, "- `%s`: summary of the most recent run (application/json)\n", resources.LatestRunURI)
	fmt.Fprintf(&sb, "- `%s`: address and labels of the connected Gmail account (application/json)\n", resources.ProfileURI)

	return sb.String()
}

func groupToolsByCategory(tools []mcp.Tool) map[string][]mcp.Tool {
	categories := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		categories[category] = append(categories[category], tool)
	}
	return categories
}

func getCategoryFromToolName(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	switch prefix {
	case "triage":
		return "Triage Tools"
	default:
		return "Other"
	}
}

// writeTools lists the tools that are only registered with --yolo.
var writeTools = []string{"triage_run", "triage_restore"}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)
	if slices.Contains(writeTools, tool.Name) {
		sb.WriteString("_Requires `--yolo`._\n\n")
	}

	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}

	if len(tool.InputSchema.Properties) > 0 {
		sb.WriteString("**Arguments:**\n")

		propNames := make([]string, 0, len(tool.InputSchema.Properties))
		for name := range tool.InputSchema.Properties {
			propNames = append(propNames, name)
		}
		sort.Strings(propNames)

		for _, name := range propNames {
			propMap, ok := tool.InputSchema.Properties[name].(map[string]any)
			if !ok {
				continue
			}

			requiredStr := "optional"
			if slices.Contains(tool.InputSchema.Required, name) {
				requiredStr = "required"
			}

			fmt.Fprintf(&sb, "- `%s` (%s): ", name, requiredStr)
			if desc, ok := propMap["description"].(string); ok {
				sb.WriteString(desc)
			} else {
				fmt.Fprintf(&sb, "%s parameter", getPropertyType(propMap))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func getPropertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
