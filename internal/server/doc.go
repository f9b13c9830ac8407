// Package server holds the long-lived state of the serve command and its
// HTTP surface.
//
// # Key Components
//
// ServerContext owns the triage orchestrator, the lazily connected mailbox
// handle and the optional run history. Both the MCP tools and the HTTP
// endpoints go through it, so a run started from one transport blocks a
// second run from the other.
//
// HTTPServer exposes:
//   - /healthz, /readyz and /healthz/detailed for probes
//   - /metrics when instrumentation exports to Prometheus
//   - POST /run, which streams the live run log line by line; registered
//     only when the server is allowed to run triage (serve --yolo)
//   - /runs and /runs/{id} for the stored history
package server
