package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/parley/ledger"
	"github.com/BaSui01/parley/orchestrator"
)

// EventType distinguishes observer events.
type EventType string

const (
	EventUtterance  EventType = "utterance"
	EventTerminated EventType = "terminated"
)

// Event is one observer notification.
type Event struct {
	ConversationID string            `json:"conversation_id"`
	Type           EventType         `json:"type"`
	Utterance      *ledger.Utterance `json:"utterance,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	TurnCount      int               `json:"turn_count,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// subscriberBuffer is the per-subscriber channel capacity. Events
// beyond a full buffer are dropped for that subscriber only.
const subscriberBuffer = 64

// Broadcaster fans events out to subscribers without ever blocking
// the publisher.
type Broadcaster struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
	closeOnce   sync.Once
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		logger:      logger.With(zap.String("component", "broadcaster")),
		subscribers: make(map[string]chan Event),
	}
}

// Subscribe registers an observer and returns its ID and event
// channel. The channel is closed on Unsubscribe or Close.
func (b *Broadcaster) Subscribe() (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes an observer and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish delivers an event to every subscriber that has buffer space.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("subscriber buffer full, event dropped",
				zap.String("subscriber_id", id),
				zap.String("conversation_id", ev.ConversationID),
			)
		}
	}
}

// Close shuts the broadcaster down and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.closed = true
		for id, ch := range b.subscribers {
			delete(b.subscribers, id)
			close(ch)
		}
	})
}

// UtteranceLogged implements orchestrator.EventSink.
func (b *Broadcaster) UtteranceLogged(conversationID string, u ledger.Utterance) {
	b.Publish(Event{
		ConversationID: conversationID,
		Type:           EventUtterance,
		Utterance:      &u,
	})
}

// ConversationTerminated implements orchestrator.EventSink.
func (b *Broadcaster) ConversationTerminated(t orchestrator.Termination) {
	b.Publish(Event{
		ConversationID: t.ConversationID,
		Type:           EventTerminated,
		Reason:         string(t.Reason),
		TurnCount:      t.TurnCount,
	})
}
