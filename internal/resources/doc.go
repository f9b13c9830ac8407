// Package resources provides MCP resources for the serve command.
// Resources are read-only data sources that MCP clients can fetch: the
// classification instruction the agent runs with, the most recent run and the
// profile of the connected mailbox.
package resources
