package capability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/parley/orchestrator"
)

func TestScripted_ReplaysLinesInOrder(t *testing.T) {
	t.Parallel()
	s := NewScripted(ScriptedConfig{Lines: []string{"one", "two", "three"}})
	ctx := context.Background()

	for i, want := range []string{"one", "two", "three"} {
		res, err := s.Speak(ctx, orchestrator.TurnRequest{TurnIndex: i, Conclude: func(string) {}})
		require.NoError(t, err)
		assert.Equal(t, want, res.Content)
	}
	assert.Equal(t, 0, s.Remaining())

	_, err := s.Speak(ctx, orchestrator.TurnRequest{Conclude: func(string) {}})
	assert.ErrorIs(t, err, ErrScriptExhausted)
}

func TestScripted_ConcludesOnFinalLine(t *testing.T) {
	t.Parallel()
	s := NewScripted(ScriptedConfig{
		Lines:            []string{"first", "last"},
		ConcludeWhenDone: true,
	})
	ctx := context.Background()

	var concluded bool
	req := orchestrator.TurnRequest{Conclude: func(string) { concluded = true }}

	_, err := s.Speak(ctx, req)
	require.NoError(t, err)
	assert.False(t, concluded)

	res, err := s.Speak(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "last", res.Content)
	assert.True(t, concluded)
}

func TestScripted_DelayHonorsCancellation(t *testing.T) {
	t.Parallel()
	s := NewScripted(ScriptedConfig{
		Lines: []string{"slow line"},
		Delay: 10 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := s.Speak(ctx, orchestrator.TurnRequest{Conclude: func(string) {}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFunc_Adapter(t *testing.T) {
	t.Parallel()
	f := Func(func(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.SpeakResult, error) {
		return &orchestrator.SpeakResult{Content: "adapted"}, nil
	})

	var c orchestrator.SpeakCapability = f
	res, err := c.Speak(context.Background(), orchestrator.TurnRequest{})
	require.NoError(t, err)
	assert.Equal(t, "adapted", res.Content)
}
