// Package triage classifies unread mail as job-application rejections and
// trashes the ones the agent confirms.
//
// A run lists unread messages through a mailbox.Gateway, fetches each one,
// and hands it to a Triager. The Triager opens an isolated agent session per
// message and waits for the first terminal event: either a call of the
// trash_email tool or a final text answer. The tool is the only path to a
// mutation. It is bound to the session's own message id, may be called once
// per session, and reaches the mailbox through the Gate, which turns every
// failure into a TrashResult instead of an error.
//
// Progress is reported as plain lines to a Sink and as structured records to
// slog.
package triage
