// Package cmd implements the command-line interface for rejectfewer.
//
// This package provides the following commands:
//   - ui: Terminal UI with a "Process Emails" button and a live run log
//   - run: Process unread emails once and print the run log
//   - list: Show the unread messages the next run would analyze
//   - trash, restore: Move individual messages to and out of Trash
//   - history: Show past runs and their per-message outcomes
//   - auth: Authorize Google accounts and store secrets in the keyring
//   - seed: Send mock rejection emails for testing
//   - serve: Start the MCP server and the HTTP status server
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
//
// The ui command is the default command when no subcommand is specified.
package cmd
