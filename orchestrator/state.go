package orchestrator

import (
	"context"

	"github.com/BaSui01/parley/ledger"
	"github.com/BaSui01/parley/speaker"
)

// State is the conversation lifecycle state.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateConcluding State = "concluding"
	StateTerminated State = "terminated"
)

// Reason explains why a conversation terminated.
type Reason string

const (
	ReasonNaturalConclusion Reason = "natural_conclusion"
	ReasonTimeout           Reason = "timeout"
	ReasonStuckTurn         Reason = "stuck_turn"
	ReasonFatalError        Reason = "fatal_error"
	ReasonCancelled         Reason = "cancelled"
)

// TurnRequest is handed to a speak capability for one turn.
type TurnRequest struct {
	ConversationID string
	TurnIndex      int
	Definition     speaker.Definition

	// Conclude is the declare-conclusion action for this turn. It is
	// idempotent; the optional reason is recorded for observability
	// only and has no control-flow effect.
	Conclude func(reason string)
}

// SpeakResult is what a speak capability reports for a completed turn.
// Content is the textual description logged to the ledger. Concluded
// mirrors an in-band conclusion signal from the capability's runtime;
// it funnels into the same idempotent flag as the Conclude callback.
type SpeakResult struct {
	Content        string
	Concluded      bool
	ConclusionNote string
}

// SpeakCapability is the external collaborator that performs one
// utterance. Implementations must honor context cancellation on a
// best-effort basis; the engine never retries a failed turn.
type SpeakCapability interface {
	Speak(ctx context.Context, req TurnRequest) (*SpeakResult, error)
}

// RoleBinding pairs a role profile with its speak capability and the
// operator-supplied overrides for that role.
type RoleBinding struct {
	Profile       speaker.Profile
	Capability    SpeakCapability
	CustomPrompt  string
	OperatorNotes string
}

// Status is the externally visible conversation state. Safe to request
// at any time, including mid-turn, from any goroutine.
type Status struct {
	ConversationID    string `json:"conversation_id"`
	State             State  `json:"state"`
	TurnCount         int    `json:"turn_count"`
	Concluded         bool   `json:"concluded"`
	TerminationReason Reason `json:"termination_reason,omitempty"`
}

// Termination is the one-shot notification fired when the state
// machine reaches terminated. Err is non-nil only for fatal errors.
type Termination struct {
	ConversationID string
	Reason         Reason
	Err            error
	TurnCount      int
	Transcript     []ledger.Utterance
}

// TerminationFunc receives the termination notification.
type TerminationFunc func(Termination)

// EventSink observes conversation progress. Implementations must not
// block; the engine calls them synchronously from the turn loop.
type EventSink interface {
	UtteranceLogged(conversationID string, u ledger.Utterance)
	ConversationTerminated(t Termination)
}
