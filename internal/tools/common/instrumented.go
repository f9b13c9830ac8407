package common

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/server"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a span and invocation
// metrics.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return instrumented(toolName, sc, false, handler)
}

// AuditedToolHandler is InstrumentedToolHandler for tools that change the
// mailbox. Every call is also written to the audit log, tagged with the
// message_id argument when present.
func AuditedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return instrumented(toolName, sc, true, handler)
}

func instrumented(toolName string, sc *server.ServerContext, audit bool, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		invocation := instrumentation.NewToolInvocation(toolName).WithSpanContext(ctx)
		if id, ok := request.GetArguments()["message_id"].(string); ok {
			invocation.WithSession("", id)
		}

		result, err := handler(ctx, request)

		status := instrumentation.StatusSuccess
		errMsg := ""
		switch {
		case err != nil:
			status = instrumentation.StatusError
			errMsg = err.Error()
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			errMsg = resultText(result)
		default:
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, status)
		if audit {
			sc.AuditLogger().LogToolInvocation(invocation.Complete(status == instrumentation.StatusSuccess, errMsg))
		}
		return result, err
	}
}

func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}
