package capability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/parley/orchestrator"
)

// ErrScriptExhausted 台词已用尽
var ErrScriptExhausted = errors.New("script exhausted")

// Func adapts a plain function to the SpeakCapability interface.
type Func func(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.SpeakResult, error)

// Speak implements orchestrator.SpeakCapability.
func (f Func) Speak(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.SpeakResult, error) {
	return f(ctx, req)
}

// ScriptedConfig configures a scripted speaker.
type ScriptedConfig struct {
	// Lines are spoken in order, one per turn.
	Lines []string

	// Delay simulates speaking time before each line is delivered.
	Delay time.Duration

	// ConcludeWhenDone declares the conclusion on the final line.
	// When false, running past the script returns ErrScriptExhausted.
	ConcludeWhenDone bool
}

// Scripted replays a fixed list of lines, one per turn. It is the
// stand-in speaker used by demos and tests; it honors context
// cancellation during its simulated speaking delay.
type Scripted struct {
	cfg ScriptedConfig

	mu   sync.Mutex
	next int
}

// NewScripted creates a scripted speaker.
func NewScripted(cfg ScriptedConfig) *Scripted {
	return &Scripted{cfg: cfg}
}

// Speak implements orchestrator.SpeakCapability.
func (s *Scripted) Speak(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.SpeakResult, error) {
	s.mu.Lock()
	if s.next >= len(s.cfg.Lines) {
		s.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	line := s.cfg.Lines[s.next]
	s.next++
	last := s.next == len(s.cfg.Lines)
	s.mu.Unlock()

	if s.cfg.Delay > 0 {
		timer := time.NewTimer(s.cfg.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if last && s.cfg.ConcludeWhenDone {
		req.Conclude("script complete")
	}
	return &orchestrator.SpeakResult{Content: line}, nil
}

// Remaining reports how many lines are left.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cfg.Lines) - s.next
}
