// ABOUTME: Package documentation for the Matrix frontend
// ABOUTME: Maps Matrix rooms and threads onto the orchestrator's event model

// Package matrix bridges a Matrix homeserver to the conversation
// orchestrator.
//
// The bridge runs a sync loop, converts room events into platform events
// (thread relations become thread ids, m.replace relations become edits,
// redactions become deletions), and implements platform.Transport so the
// orchestrator can post threaded replies, upload snippets, redact its own
// messages, and toggle reactions.
//
// End-to-end encrypted rooms are supported via mautrix cryptohelper with a
// SQLite-backed key store; encrypted attachments are decrypted at fetch time.
package matrix
