package ledger

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAppend_AssignsDenseIndexes(t *testing.T) {
	t.Parallel()
	l := New("conv-1", zap.NewNop())

	for i := 0; i < 5; i++ {
		u, err := l.Append("Dispatcher (Tim)", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
		assert.Equal(t, i, u.SequenceIndex)
		assert.False(t, u.CreatedAt.IsZero())
	}

	snap := l.Snapshot()
	require.Len(t, snap, 5)
	for i, u := range snap {
		assert.Equal(t, i, u.SequenceIndex)
	}
}

func TestAppend_EmptySpeaker(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)
	_, err := l.Append("", "hello")
	assert.ErrorIs(t, err, ErrEmptySpeaker)
	assert.Equal(t, 0, l.Len())
}

func TestAppend_AfterFinalize(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)
	_, err := l.Append("Driver (Chris)", "sounds good")
	require.NoError(t, err)

	l.Finalize()
	assert.True(t, l.Finalized())

	_, err = l.Append("Driver (Chris)", "one more thing")
	assert.ErrorIs(t, err, ErrFinalized)
	assert.Equal(t, 1, l.Len())

	// Finalize is idempotent.
	l.Finalize()
	assert.True(t, l.Finalized())
}

func TestSnapshot_IsACopy(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)
	_, err := l.Append("A", "first")
	require.NoError(t, err)

	snap := l.Snapshot()
	snap[0].Content = "mutated"

	assert.Equal(t, "first", l.Snapshot()[0].Content)
}

func TestTail(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)
	for i := 0; i < 4; i++ {
		_, err := l.Append("A", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	tail := l.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "m2", tail[0].Content)
	assert.Equal(t, "m3", tail[1].Content)

	assert.Len(t, l.Tail(10), 4)
	assert.Empty(t, l.Tail(0))
	assert.Empty(t, l.Tail(-1))
}

func TestRenderDigest_Empty(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)
	assert.Equal(t, EmptyDigest, l.RenderDigest())
}

func TestRenderDigest_Format(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)
	_, err := l.Append("A", "Hello, load from Dallas")
	require.NoError(t, err)
	_, err = l.Append("B", "What's the rate?")
	require.NoError(t, err)

	want := DigestHeader + "\nA: Hello, load from Dallas\nB: What's the rate?"
	assert.Equal(t, want, l.RenderDigest())
}

func TestRenderDigest_Deterministic(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)
	_, err := l.Append("A", "hi")
	require.NoError(t, err)

	assert.Equal(t, l.RenderDigest(), l.RenderDigest())
}

func TestRenderTailDigest(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)
	for i := 0; i < 3; i++ {
		_, err := l.Append("A", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	assert.Equal(t, DigestHeader+"\nA: m2", l.RenderTailDigest(1))
}

func TestAppend_ConcurrentWritersKeepDenseIndexes(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := l.Append(fmt.Sprintf("writer-%d", w), "x")
				assert.NoError(t, err)
			}
		}(w)
	}

	// Concurrent readers must never observe a torn state.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			snap := l.Snapshot()
			for j, u := range snap {
				assert.Equal(t, j, u.SequenceIndex)
			}
			_ = l.RenderDigest()
		}
	}()

	wg.Wait()
	<-done

	snap := l.Snapshot()
	require.Len(t, snap, writers*perWriter)
	for i, u := range snap {
		assert.Equal(t, i, u.SequenceIndex)
	}
}

// wordCounter is a cheap Counter for tests: one token per
// whitespace-separated word.
type wordCounter struct{}

func (wordCounter) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

func TestRenderDigestBounded_DropsOldestFirst(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)
	_, err := l.Append("A", "one two three four five six seven")
	require.NoError(t, err)
	_, err = l.Append("B", "short reply")
	require.NoError(t, err)

	// Budget only fits the newest line plus the header.
	digest, err := l.RenderDigestBounded(wordCounter{}, 6)
	require.NoError(t, err)
	assert.Equal(t, DigestHeader+"\nB: short reply", digest)
}

func TestRenderDigestBounded_BudgetTooSmall(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)
	_, err := l.Append("A", "one two three four five six seven")
	require.NoError(t, err)

	digest, err := l.RenderDigestBounded(wordCounter{}, 1)
	require.NoError(t, err)
	assert.Equal(t, EmptyDigest, digest)
}

func TestRenderDigestBounded_NilCounterFallsBack(t *testing.T) {
	t.Parallel()
	l := New("conv-1", nil)
	_, err := l.Append("A", "hi")
	require.NoError(t, err)

	digest, err := l.RenderDigestBounded(nil, 100)
	require.NoError(t, err)
	assert.Equal(t, l.RenderDigest(), digest)
}
