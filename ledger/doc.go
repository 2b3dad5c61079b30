// Package ledger provides the append-only conversation ledger shared by
// all speakers in a conversation.
//
// The ledger is the single source of truth for "what has been said so
// far". Appends are atomic, sequence indexes are dense and strictly
// increasing, and utterances are immutable once written. Reads go
// through Snapshot/Tail/RenderDigest, which copy under a short-lived
// lock so that a reader never observes a torn state and never blocks
// an appender for longer than an in-memory copy.
//
// RenderDigest produces the deterministic textual rendering injected
// into the next speaker's instructions. An empty ledger renders a fixed
// sentinel line instead of an empty string, so downstream prompt
// builders never have to special-case emptiness.
package ledger
