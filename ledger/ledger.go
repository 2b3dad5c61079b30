package ledger

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Digest rendering constants. These match the transcript format the
// voice workers expect, so rendered digests are stable across releases.
const (
	// DigestHeader prefixes every non-empty digest.
	DigestHeader = "Previous conversation:"

	// EmptyDigest is rendered when the ledger holds no utterances.
	EmptyDigest = "No previous messages in this conversation yet."
)

// Utterance is one logged turn. Utterances are created only by Append
// and are immutable afterwards.
type Utterance struct {
	SpeakerLabel  string    `json:"speaker_label"`
	Content       string    `json:"content"`
	SequenceIndex int       `json:"sequence_index"`
	CreatedAt     time.Time `json:"created_at"`
}

// Ledger is the append-only log of utterances for exactly one
// conversation. All operations are safe for concurrent use. The mutex
// guards only in-memory list manipulation; it is never held across I/O
// or a speak call.
type Ledger struct {
	conversationID string
	logger         *zap.Logger

	mu         sync.RWMutex
	utterances []Utterance
	finalized  bool
}

// New creates an empty ledger for the given conversation.
func New(conversationID string, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		conversationID: conversationID,
		logger: logger.With(
			zap.String("component", "ledger"),
			zap.String("conversation_id", conversationID),
		),
		utterances: make([]Utterance, 0, 16),
	}
}

// ConversationID returns the owning conversation's ID.
func (l *Ledger) ConversationID() string {
	return l.conversationID
}

// Append records one utterance and assigns it the next sequence index.
// Indexes are dense, starting at 0. Append fails only when the speaker
// label is empty or the ledger has been finalized.
func (l *Ledger) Append(speakerLabel, content string) (Utterance, error) {
	if speakerLabel == "" {
		return Utterance{}, ErrEmptySpeaker
	}

	l.mu.Lock()
	if l.finalized {
		l.mu.Unlock()
		return Utterance{}, ErrFinalized
	}
	u := Utterance{
		SpeakerLabel:  speakerLabel,
		Content:       content,
		SequenceIndex: len(l.utterances),
		CreatedAt:     time.Now(),
	}
	l.utterances = append(l.utterances, u)
	l.mu.Unlock()

	l.logger.Debug("utterance appended",
		zap.Int("sequence_index", u.SequenceIndex),
		zap.String("speaker", u.SpeakerLabel),
	)
	return u, nil
}

// Snapshot returns a copy of all utterances in append order.
func (l *Ledger) Snapshot() []Utterance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Utterance, len(l.utterances))
	copy(out, l.utterances)
	return out
}

// Tail returns the most recent n utterances, or all of them when the
// ledger holds fewer than n.
func (l *Ledger) Tail(n int) []Utterance {
	if n <= 0 {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := len(l.utterances) - n
	if start < 0 {
		start = 0
	}
	out := make([]Utterance, len(l.utterances)-start)
	copy(out, l.utterances[start:])
	return out
}

// Len returns the number of appended utterances.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.utterances)
}

// Finalize marks the ledger read-only. Further appends return
// ErrFinalized. Finalize is idempotent.
func (l *Ledger) Finalize() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finalized = true
}

// Finalized reports whether the ledger accepts further appends.
func (l *Ledger) Finalized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.finalized
}

// RenderDigest renders the full ledger as the deterministic context
// digest: the fixed header followed by one "{speaker}: {content}" line
// per utterance, or the EmptyDigest sentinel when nothing has been said.
func (l *Ledger) RenderDigest() string {
	return renderLines(l.Snapshot())
}

// RenderTailDigest renders a digest limited to the most recent n
// utterances, for callers that bound context size by turn count.
func (l *Ledger) RenderTailDigest(n int) string {
	return renderLines(l.Tail(n))
}

func renderLines(utterances []Utterance) string {
	if len(utterances) == 0 {
		return EmptyDigest
	}
	var b strings.Builder
	b.WriteString(DigestHeader)
	for _, u := range utterances {
		b.WriteByte('\n')
		b.WriteString(u.SpeakerLabel)
		b.WriteString(": ")
		b.WriteString(u.Content)
	}
	return b.String()
}
