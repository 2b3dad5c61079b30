// Package persistence archives transcripts of terminated
// conversations.
//
// The turn engine itself never persists anything; when a conversation
// terminates, its final ledger snapshot is handed to a TranscriptStore.
// Three implementations ship: an in-memory store for development and
// tests, a Redis store for distributed deployments, and an embedded
// SQLite store for single-node setups that need durability without an
// external service.
package persistence
