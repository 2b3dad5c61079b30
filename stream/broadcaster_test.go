package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/parley/ledger"
	"github.com/BaSui01/parley/orchestrator"
)

func TestBroadcaster_PublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster(nil)
	defer b.Close()

	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	b.Publish(Event{ConversationID: "conv-1", Type: EventUtterance})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "conv-1", ev.ConversationID)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster(nil)
	defer b.Close()

	// Never drained; the buffer fills and further events are dropped.
	b.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish(Event{ConversationID: "conv-1", Type: EventUtterance})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster(nil)
	defer b.Close()

	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open, "channel must be closed after unsubscribe")
}

func TestBroadcaster_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster(nil)
	_, ch := b.Subscribe()

	b.Close()
	b.Close()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after close is a no-op, not a panic.
	b.Publish(Event{ConversationID: "conv-1"})

	_, late := b.Subscribe()
	_, open = <-late
	assert.False(t, open, "post-close subscription gets a closed channel")
}

func TestBroadcaster_ImplementsEventSink(t *testing.T) {
	t.Parallel()
	var sink orchestrator.EventSink = NewBroadcaster(nil)

	b := sink.(*Broadcaster)
	defer b.Close()
	_, ch := b.Subscribe()

	sink.UtteranceLogged("conv-1", ledger.Utterance{SpeakerLabel: "A", Content: "hi"})
	sink.ConversationTerminated(orchestrator.Termination{
		ConversationID: "conv-1",
		Reason:         orchestrator.ReasonNaturalConclusion,
		TurnCount:      4,
	})

	ev := <-ch
	assert.Equal(t, EventUtterance, ev.Type)
	require.NotNil(t, ev.Utterance)
	assert.Equal(t, "A", ev.Utterance.SpeakerLabel)

	ev = <-ch
	assert.Equal(t, EventTerminated, ev.Type)
	assert.Equal(t, "natural_conclusion", ev.Reason)
	assert.Equal(t, 4, ev.TurnCount)
}

func TestHandler_StreamsEventsOverWebSocket(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster(nil)
	defer b.Close()

	srv := httptest.NewServer(NewHandler(b, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+srv.Listener.Addr().String(), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	// Give the server loop a moment to register the subscription.
	require.Eventually(t, func() bool {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return len(b.subscribers) == 1
	}, 2*time.Second, 10*time.Millisecond)

	b.UtteranceLogged("conv-1", ledger.Utterance{SpeakerLabel: "Driver (Chris)", Content: "on my way"})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, EventUtterance, ev.Type)
	require.NotNil(t, ev.Utterance)
	assert.Equal(t, "on my way", ev.Utterance.Content)
}
