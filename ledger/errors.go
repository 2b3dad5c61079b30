package ledger

import "errors"

var (
	// ErrFinalized is returned by Append after Finalize has been called.
	ErrFinalized = errors.New("ledger finalized, no further appends accepted")

	// ErrEmptySpeaker is returned when an append carries no speaker label.
	ErrEmptySpeaker = errors.New("utterance speaker label is empty")
)
