// Package triage_tools exposes the rejection triage pipeline as MCP tools.
//
// Read-only tools, always registered:
//   - triage_status: run state, mailbox connection and last run summary
//   - triage_list_candidates: unread messages the next run would analyze
//   - triage_history: recent runs, or the outcomes of one run
//   - triage_list_trashed: messages trashed by past runs and not restored
//
// Write tools, registered only when write operations are enabled:
//   - triage_run: run one pass and return its log and summary
//   - triage_restore: move trashed messages back out of Trash
//
// Example usage:
//
//	triage_list_candidates(limit: 5)
//	triage_restore(message_ids: ["18c2f0a1b2", "18c2f0a1b3"])
package triage_tools
