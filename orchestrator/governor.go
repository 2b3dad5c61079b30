package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// GovernorConfig holds the safety ceilings for one conversation.
type GovernorConfig struct {
	// MaxDuration is the wall-clock ceiling for the whole conversation.
	MaxDuration time.Duration `json:"max_duration" yaml:"max_duration"`

	// MaxTurns is the turn-count ceiling, a safety valve against
	// speakers that never invoke the conclusion action.
	MaxTurns int `json:"max_turns" yaml:"max_turns"`

	// TurnTimeout bounds a single speak invocation.
	TurnTimeout time.Duration `json:"turn_timeout" yaml:"turn_timeout"`

	// TurnsPerMinute optionally paces turn starts to model natural
	// conversational cadence. Zero disables pacing.
	TurnsPerMinute float64 `json:"turns_per_minute" yaml:"turns_per_minute"`
}

// DefaultGovernorConfig returns the shipping defaults: ten minutes of
// wall clock, twenty turns, ninety seconds per turn, no pacing.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		MaxDuration: 10 * time.Minute,
		MaxTurns:    20,
		TurnTimeout: 90 * time.Second,
	}
}

// Validate rejects non-positive ceilings.
func (c GovernorConfig) Validate() error {
	if c.MaxDuration <= 0 {
		return fmt.Errorf("governor: max_duration must be positive, got %s", c.MaxDuration)
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("governor: max_turns must be positive, got %d", c.MaxTurns)
	}
	if c.TurnTimeout <= 0 {
		return fmt.Errorf("governor: turn_timeout must be positive, got %s", c.TurnTimeout)
	}
	if c.TurnsPerMinute < 0 {
		return fmt.Errorf("governor: turns_per_minute must not be negative, got %f", c.TurnsPerMinute)
	}
	return nil
}

// governor enforces the ceilings. It is owned by a single engine and
// consulted only from the turn loop goroutine.
type governor struct {
	cfg       GovernorConfig
	startedAt time.Time
	limiter   *rate.Limiter
	now       func() time.Time // test seam
}

func newGovernor(cfg GovernorConfig) *governor {
	g := &governor{cfg: cfg, now: time.Now}
	if cfg.TurnsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.TurnsPerMinute/60.0), 1)
	}
	return g
}

func (g *governor) start() {
	g.startedAt = g.now()
}

// exceeded reports the forced-termination reason when a ceiling has
// been crossed. It is checked before a turn starts, so a conversation
// at exactly the turn ceiling never begins the over-limit turn.
func (g *governor) exceeded(turnCount int) (Reason, bool) {
	if g.now().Sub(g.startedAt) >= g.cfg.MaxDuration {
		return ReasonTimeout, true
	}
	if turnCount >= g.cfg.MaxTurns {
		return ReasonStuckTurn, true
	}
	return "", false
}

// pace blocks until the next turn may start, honoring cancellation.
func (g *governor) pace(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

// turnContext derives the per-turn deadline context for a speak call.
func (g *governor) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.cfg.TurnTimeout)
}
