// Package logging provides structured logging utilities for rejectfewer.
//
// All packages log through log/slog. This package keeps attribute names
// consistent (run_id, message_id, session_id, tool, status) and builds the
// process-wide handler from configuration.
//
// # Usage Patterns
//
// Scope a logger to a triage session:
//
//	logger := logging.WithSession(slog.Default(), msg.ID, sessionID)
//	logger.Info("session closed", logging.Outcome("no_action"))
//
// Sender addresses are never logged in clear text:
//
//	logger.Debug("fetched message", logging.Sender(msg.Sender))
package logging
