// Package batch provides helpers for MCP tools that act on several message
// ids in one call: parsing an id or a list of ids, running the operation per
// id and reporting partial failures in one JSON document.
package batch
