package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/parley/ledger"
)

func sampleTranscript(id string, endedAt time.Time) *Transcript {
	return &Transcript{
		ConversationID: id,
		Reason:         "natural_conclusion",
		TurnCount:      2,
		StartedAt:      endedAt.Add(-time.Minute),
		EndedAt:        endedAt,
		Entries: []Entry{
			{SpeakerLabel: "Dispatcher (Tim)", Content: "got a load for you", SequenceIndex: 0, CreatedAt: endedAt.Add(-50 * time.Second)},
			{SpeakerLabel: "Driver (Chris)", Content: "I'll take it", SequenceIndex: 1, CreatedAt: endedAt.Add(-10 * time.Second)},
		},
	}
}

// newStoreFactories returns constructors for every backend so the
// whole suite runs against each implementation.
func newStoreFactories(t *testing.T) map[string]func(t *testing.T) TranscriptStore {
	t.Helper()
	return map[string]func(t *testing.T) TranscriptStore{
		"memory": func(t *testing.T) TranscriptStore {
			return NewMemoryTranscriptStore()
		},
		"redis": func(t *testing.T) TranscriptStore {
			mr := miniredis.RunT(t)
			store, err := NewRedisTranscriptStore(RedisConfig{Addr: mr.Addr()})
			require.NoError(t, err)
			return store
		},
		"sqlite": func(t *testing.T) TranscriptStore {
			store, err := NewSQLiteTranscriptStore(SQLiteConfig{Path: ":memory:"}, zap.NewNop())
			require.NoError(t, err)
			return store
		},
	}
}

func TestTranscriptStore_RoundTrip(t *testing.T) {
	for name, factory := range newStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Ping(ctx))

			want := sampleTranscript("conv-1", time.Now().UTC().Truncate(time.Second))
			require.NoError(t, store.SaveTranscript(ctx, want))

			got, err := store.GetTranscript(ctx, "conv-1")
			require.NoError(t, err)
			assert.Equal(t, want.ConversationID, got.ConversationID)
			assert.Equal(t, want.Reason, got.Reason)
			assert.Equal(t, want.TurnCount, got.TurnCount)
			require.Len(t, got.Entries, 2)
			assert.Equal(t, want.Entries[0].SpeakerLabel, got.Entries[0].SpeakerLabel)
			assert.Equal(t, want.Entries[1].Content, got.Entries[1].Content)
			assert.Equal(t, 1, got.Entries[1].SequenceIndex)
		})
	}
}

func TestTranscriptStore_GetMissing(t *testing.T) {
	for name, factory := range newStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()

			_, err := store.GetTranscript(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestTranscriptStore_SaveInvalid(t *testing.T) {
	for name, factory := range newStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			assert.ErrorIs(t, store.SaveTranscript(ctx, nil), ErrInvalidInput)
			assert.ErrorIs(t, store.SaveTranscript(ctx, &Transcript{}), ErrInvalidInput)
		})
	}
}

func TestTranscriptStore_ListOrdersByEndTime(t *testing.T) {
	for name, factory := range newStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			base := time.Now().UTC().Truncate(time.Second)
			for i := 0; i < 3; i++ {
				tr := sampleTranscript(fmt.Sprintf("conv-%d", i), base.Add(time.Duration(i)*time.Minute))
				require.NoError(t, store.SaveTranscript(ctx, tr))
			}

			all, err := store.ListTranscripts(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "conv-2", all[0].ConversationID)
			assert.Equal(t, "conv-0", all[2].ConversationID)

			limited, err := store.ListTranscripts(ctx, 2)
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(t, "conv-2", limited[0].ConversationID)
		})
	}
}

func TestTranscriptStore_Delete(t *testing.T) {
	for name, factory := range newStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.SaveTranscript(ctx, sampleTranscript("conv-1", time.Now())))
			require.NoError(t, store.DeleteTranscript(ctx, "conv-1"))

			_, err := store.GetTranscript(ctx, "conv-1")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.DeleteTranscript(ctx, "conv-1"), ErrNotFound)
		})
	}
}

func TestTranscriptStore_SaveOverwrites(t *testing.T) {
	for name, factory := range newStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			tr := sampleTranscript("conv-1", time.Now().UTC())
			require.NoError(t, store.SaveTranscript(ctx, tr))

			tr.Reason = "cancelled"
			require.NoError(t, store.SaveTranscript(ctx, tr))

			got, err := store.GetTranscript(ctx, "conv-1")
			require.NoError(t, err)
			assert.Equal(t, "cancelled", got.Reason)
		})
	}
}

func TestFromLedger(t *testing.T) {
	t.Parallel()
	l := ledger.New("conv-1", nil)
	_, err := l.Append("A", "hi")
	require.NoError(t, err)
	_, err = l.Append("B", "hello")
	require.NoError(t, err)

	entries := FromLedger(l.Snapshot())
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].SpeakerLabel)
	assert.Equal(t, 1, entries[1].SequenceIndex)
}

func TestNewTranscriptStore_Factory(t *testing.T) {
	t.Parallel()
	store, err := NewTranscriptStore(DefaultStoreConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryTranscriptStore{}, store)

	_, err = NewTranscriptStore(StoreConfig{Backend: "etcd"}, nil)
	assert.Error(t, err)
}

func TestMemoryStore_ClosedRejectsOperations(t *testing.T) {
	t.Parallel()
	store := NewMemoryTranscriptStore()
	require.NoError(t, store.Close())

	ctx := context.Background()
	assert.ErrorIs(t, store.Ping(ctx), ErrStoreClosed)
	assert.ErrorIs(t, store.SaveTranscript(ctx, sampleTranscript("x", time.Now())), ErrStoreClosed)
}
