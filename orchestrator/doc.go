// Package orchestrator contains the turn engine that coordinates a
// simulated real-time dialogue between N cooperating speakers.
//
// # State machine
//
// A conversation moves through not_started -> running -> concluding ->
// terminated. Turns are strictly serialized and round-robin over the
// configured role order; the opening role is always the first element.
// Each turn renders the ledger digest, builds a fresh speaker
// definition, invokes the role's bound speak capability, and appends
// the result to the ledger. The conclusion flag and the governor
// ceilings are checked at the top of every iteration, never mid-turn.
//
// # Conclusion protocol
//
// Either party ends the conversation by invoking the conclude action
// wired into its turn. The action is idempotent and monotonic: once
// concluded, always concluded. The in-flight turn still finishes and
// is logged; no further turns start. Heuristic end-phrase scanning is
// deliberately not implemented.
//
// # Governor
//
// Three independent ceilings force conclusion: total wall-clock time,
// total turn count, and a per-turn deadline. An externally triggered
// Cancel is authoritative for the loop and cooperative (via context)
// for the in-flight speak call; a cancelled turn appends nothing, even
// if the capability later reports success.
//
// The only suspension point is the speak invocation, which runs
// without holding the ledger lock, so independent conversations in the
// same process never block each other.
package orchestrator
