package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/resources"
	"github.com/teemow/rejectfewer/internal/server"
	"github.com/teemow/rejectfewer/internal/tools/triage_tools"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"

	shutdownTimeout = 30 * time.Second
)

type serveOptions struct {
	transport        string
	httpAddr         string
	yolo             bool
	disableStreaming bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server and the HTTP status server",
		Long: `Start an MCP server exposing the triage pipeline as tools and resources.

Transports:
  stdio            MCP over standard input/output (default). The HTTP status
                   server is started as well when --http-addr is given.
  streamable-http  MCP at /mcp next to the HTTP status server on --http-addr.

The HTTP status server answers /healthz, /readyz and /healthz/detailed
and serves the history at /runs and /runs/{id}. With --yolo it also streams
a run log from POST /run. It listens on loopback unless --http-addr says
otherwise. /metrics is served unless METRICS_EXPORTER selects otlp or stdout.

By default only read-only tools are registered. Use --yolo to allow
triage_run and triage_restore, which modify the mailbox.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("http-addr") && opts.transport == transportStdio {
				opts.httpAddr = ""
			}
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", server.DefaultAddr, "HTTP server address")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "Enable tools that run triage and restore messages")
	cmd.Flags().BoolVar(&opts.disableStreaming, "disable-streaming", false, "Answer MCP requests with plain JSON instead of SSE streams")
	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	if opts.transport != transportStdio && opts.transport != transportStreamableHTTP {
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", opts.transport, transportStdio, transportStreamableHTTP)
	}
	if opts.transport == transportStreamableHTTP && opts.httpAddr == "" {
		return errors.New("--http-addr is required for the streamable-http transport")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cmd, appOptions{telemetry: true})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			a.logger.Warn("shutdown incomplete", slog.Any("error", err))
		}
	}()

	sc, err := a.serverContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() { _ = sc.Shutdown() }()

	readOnly := !opts.yolo
	mcpSrv, err := newMCPServer(sc, readOnly)
	if err != nil {
		return err
	}
	if readOnly {
		a.logger.Info("starting in read-only mode, use --yolo to enable triage_run and triage_restore")
	}

	var mcpHandler http.Handler
	if opts.transport == transportStreamableHTTP {
		mcpHandler = mcpserver.NewStreamableHTTPServer(mcpSrv,
			mcpserver.WithEndpointPath("/mcp"),
			mcpserver.WithDisableStreaming(opts.disableStreaming),
		)
	}

	var httpSrv *server.HTTPServer
	httpErr := make(chan error, 1)
	if opts.httpAddr != "" {
		httpSrv, err = server.NewHTTPServer(statusServerConfig(opts, sc, a.provider, mcpHandler))
		if err != nil {
			return err
		}
		go func() {
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
			close(httpErr)
		}()
		httpSrv.Health().SetReady(true)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("http server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	switch opts.transport {
	case transportStdio:
		return runStdioServer(ctx, mcpSrv, httpErr)
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving MCP at http://%s/mcp\n", opts.httpAddr)
		select {
		case <-ctx.Done():
			a.logger.Info("shutdown signal received")
			return nil
		case err := <-httpErr:
			if err != nil {
				return fmt.Errorf("http server stopped: %w", err)
			}
			return nil
		}
	}
}

// newMCPServer creates the MCP server with the triage tools and resources.
func newMCPServer(sc *server.ServerContext, readOnly bool) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("rejectfewer", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)

	registrations := []struct {
		name     string
		register func() error
	}{
		{"Triage", func() error { return triage_tools.RegisterTriageTools(mcpSrv, sc, readOnly) }},
		{"Triage Resources", func() error { return resources.RegisterTriageResources(mcpSrv, sc) }},
	}
	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}
	return mcpSrv, nil
}

// runStdioServer serves MCP on stdin/stdout until the client disconnects,
// ctx is cancelled or the optional HTTP server fails.
func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, httpErr <-chan error) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case err, ok := <-httpErr:
		if ok && err != nil {
			return fmt.Errorf("http server stopped: %w", err)
		}
		// The HTTP server closed cleanly or was never started.
		return waitStdio(ctx, serverDone)
	case <-ctx.Done():
		return nil
	}
}

func waitStdio(ctx context.Context, serverDone <-chan error) error {
	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// statusServerConfig mirrors the MCP tool gating: POST /run exists only
// with --yolo.
func statusServerConfig(opts serveOptions, sc *server.ServerContext, provider *instrumentation.Provider, mcpHandler http.Handler) server.HTTPServerConfig {
	return server.HTTPServerConfig{
		Addr:                    opts.httpAddr,
		Context:                 sc,
		InstrumentationProvider: provider,
		MCPHandler:              mcpHandler,
		AllowRun:                opts.yolo,
	}
}
