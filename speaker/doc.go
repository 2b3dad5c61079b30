// Package speaker builds the fully self-contained speaker definition
// handed to the external speech capability at the start of every turn.
//
// The speech capability is a stateless instruction string: there is no
// long-lived agent object to mutate between turns. Build therefore
// re-derives the complete instruction text every turn from the role's
// static profile plus the ledger's current digest. Build is a pure
// function; calling it twice with the same input yields byte-identical
// output, which is what makes per-turn reconstruction safe.
package speaker
