package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/store"
	"github.com/teemow/rejectfewer/internal/triage"
)

const (
	// DefaultAddr is the default address for the status server.
	DefaultAddr = "127.0.0.1:9090"

	// DefaultReadTimeout is the default read header timeout.
	DefaultReadTimeout = 10 * time.Second

	// DefaultIdleTimeout is the default idle timeout.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	defaultRunsLimit = 20
)

// HTTPServerConfig holds configuration for the status server.
type HTTPServerConfig struct {
	// Addr is the address to bind to (e.g., "127.0.0.1:9090").
	Addr string

	// Context backs the run and history endpoints. Required.
	Context *ServerContext

	// InstrumentationProvider exposes /metrics when it exports to Prometheus.
	InstrumentationProvider *instrumentation.Provider

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler

	// AllowRun registers POST /run. A run trashes mail, so it is off
	// unless the server was started with --yolo.
	AllowRun bool
}

// HTTPServer serves health probes, Prometheus metrics, the run history and a
// run trigger that streams the live log.
//
// Endpoints:
//   - GET  /healthz, /readyz, /healthz/detailed
//   - GET  /metrics (only with a Prometheus exporter)
//   - POST /run streams the run log as text/plain (only with AllowRun)
//   - GET  /runs?limit=N and /runs/{id}
//   - /mcp (only with an MCP handler)
type HTTPServer struct {
	sc      *ServerContext
	health  *HealthChecker
	handler http.Handler
	addr    string

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewHTTPServer creates a new status server with the given configuration.
func NewHTTPServer(config HTTPServerConfig) (*HTTPServer, error) {
	if config.Context == nil {
		return nil, fmt.Errorf("server context is required for the status server")
	}
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}

	s := &HTTPServer{
		sc:     config.Context,
		health: NewHealthChecker(config.Context),
		addr:   config.Addr,
	}

	mux := http.NewServeMux()
	s.health.RegisterHealthEndpoints(mux)
	if config.InstrumentationProvider.HasPrometheus() {
		// The OpenTelemetry exporter registers on the default Prometheus registry.
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	if config.AllowRun {
		mux.HandleFunc("POST /run", s.handleRun)
	}
	mux.HandleFunc("GET /runs", s.handleRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleRunOutcomes)
	if config.MCPHandler != nil {
		mux.Handle("/mcp", config.MCPHandler)
	}
	s.handler = mux

	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Health returns the health checker so callers can flip readiness.
func (s *HTTPServer) Health() *HealthChecker {
	return s.health
}

// Start listens on the configured address and serves until Shutdown.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	slog.Info("starting status server", "addr", ln.Addr().String())
	return srv.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	slog.Info("shutting down status server")
	s.health.SetReady(false)
	return srv.Shutdown(ctx)
}

// Addr returns the bound address once started, else the configured one.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// flushSink writes each line to the response as soon as it is produced.
type flushSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (f flushSink) Log(line string) {
	_, _ = fmt.Fprintln(f.w, line)
	if f.flusher != nil {
		f.flusher.Flush()
	}
}

func (s *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.sc.Orchestrator().Running() {
		http.Error(w, triage.ErrRunInProgress.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	flusher, _ := w.(http.Flusher)
	sink := flushSink{w: w, flusher: flusher}

	// The status line is already committed once the first log line is out,
	// so failures after that point are reported in the body only.
	_, err := s.sc.RunTriage(r.Context(), sink)
	switch {
	case errors.Is(err, triage.ErrRunInProgress), errors.Is(err, ErrShutdown):
		sink.Log("ERROR: " + err.Error())
	case err != nil:
		s.sc.Logger().Warn("triage run over http failed", "error", err)
	}
}

func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	history := s.sc.History()
	if history == nil {
		http.Error(w, "run history is disabled", http.StatusNotFound)
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := history.Runs(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *HTTPServer) handleRunOutcomes(w http.ResponseWriter, r *http.Request) {
	history := s.sc.History()
	if history == nil {
		http.Error(w, "run history is disabled", http.StatusNotFound)
		return
	}

	outcomes, err := history.Outcomes(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(outcomes) == 0 {
		http.Error(w, store.ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}
