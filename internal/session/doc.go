// Package session holds the in-memory thread state store: which threads have
// live AI sessions, who owns them, their effective configuration, and the
// causal history of turns. It is the process-wide source of truth; nothing is
// persisted across restarts.
package session
