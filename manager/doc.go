// Package manager hosts multiple concurrent conversations.
//
// Each conversation runs its own turn engine. The manager addresses
// them by conversation ID, forwards their events to the live stream,
// records metrics, and archives finished transcripts to the configured
// store. Terminated conversations stay queryable until Shutdown.
package manager
