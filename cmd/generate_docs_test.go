package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCategoryFromToolName(t *testing.T) {
	assert.Equal(t, "Triage Tools", getCategoryFromToolName("triage_run"))
	assert.Equal(t, "Other", getCategoryFromToolName("gmail_list_threads"))
	assert.Equal(t, "Other", getCategoryFromToolName("status"))
}

func TestGenerateToolMarkdown(t *testing.T) {
	tool := mcp.NewTool("triage_restore",
		mcp.WithDescription("Move messages back out of Trash"),
		mcp.WithString("message_ids", mcp.Required(), mcp.Description("Ids to restore")),
		mcp.WithNumber("limit"),
	)

	md := generateToolMarkdown(tool)
	assert.Contains(t, md, "### triage_restore")
	assert.Contains(t, md, "_Requires `--yolo`._")
	assert.Contains(t, md, "- `message_ids` (required): Ids to restore")
	assert.Contains(t, md, "- `limit` (optional): number parameter")
	assert.Less(t, strings.Index(md, "`limit`"), strings.Index(md, "`message_ids`"))
}

func TestRunGenerateDocs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, runGenerateDocs(&stdout, &stderr, ""))

	md := stdout.String()
	for _, want := range []string{
		"# MCP Tools Reference",
		"- [Triage Tools](#triage-tools)",
		"### triage_status",
		"### triage_list_candidates",
		"### triage_history",
		"### triage_list_trashed",
		"### triage_run",
		"### triage_restore",
		"triage://instruction",
		"triage://runs/latest",
	} {
		assert.Contains(t, md, want)
	}
	assert.Empty(t, stderr.String())
	assert.NotContains(t, md, "## Other")

	out := filepath.Join(t.TempDir(), "tools.md")
	stdout.Reset()
	require.NoError(t, runGenerateDocs(&stdout, &stderr, out))
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), out)
	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, md, string(written))
}
