// Package parley provides a top-level convenience entry point for
// running a single two-party conversation with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/parley"
//
//	engine, err := parley.New(
//	    parley.WithRole(dispatcherProfile, dispatcherCapability),
//	    parley.WithRole(driverProfile, driverCapability),
//	    parley.WithMaxTurns(12),
//	)
//
//	term, err := parley.Run(ctx,
//	    parley.WithRole(dispatcherProfile, dispatcherCapability),
//	    parley.WithRole(driverProfile, driverCapability),
//	)
//
// This is a thin wrapper around [orchestrator.New]; multi-conversation
// deployments should use the manager package instead.
package parley

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/parley/ledger"
	"github.com/BaSui01/parley/orchestrator"
	"github.com/BaSui01/parley/speaker"
)

// Option configures the engine created by [New].
type Option func(*settings)

type settings struct {
	cfg    orchestrator.Config
	logger *zap.Logger
}

// WithConversationID pins the conversation ID instead of generating one.
func WithConversationID(id string) Option {
	return func(s *settings) { s.cfg.ConversationID = id }
}

// WithRole appends one party in speaking order. The first role opens.
func WithRole(profile speaker.Profile, cap orchestrator.SpeakCapability) Option {
	return func(s *settings) {
		s.cfg.Roles = append(s.cfg.Roles, orchestrator.RoleBinding{
			Profile:    profile,
			Capability: cap,
		})
	}
}

// WithRoles sets the full role list at once.
func WithRoles(roles ...orchestrator.RoleBinding) Option {
	return func(s *settings) { s.cfg.Roles = roles }
}

// WithGovernor replaces the whole governor configuration.
func WithGovernor(gov orchestrator.GovernorConfig) Option {
	return func(s *settings) { s.cfg.Governor = gov }
}

// WithMaxTurns overrides the turn ceiling.
func WithMaxTurns(n int) Option {
	return func(s *settings) { s.cfg.Governor.MaxTurns = n }
}

// WithDigestBudget bounds the digest injected into each speaker.
func WithDigestBudget(maxTokens int, counter ledger.Counter) Option {
	return func(s *settings) {
		s.cfg.DigestTokenBudget = maxTokens
		s.cfg.TokenCounter = counter
	}
}

// WithSink registers an event sink.
func WithSink(sink orchestrator.EventSink) Option {
	return func(s *settings) { s.cfg.Sink = sink }
}

// WithOnTerminated registers the one-shot termination callback.
func WithOnTerminated(fn orchestrator.TerminationFunc) Option {
	return func(s *settings) { s.cfg.OnTerminated = fn }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// New creates a conversation engine. At minimum two roles must be
// supplied via [WithRole] or [WithRoles].
func New(opts ...Option) (*orchestrator.Engine, error) {
	s := settings{
		cfg: orchestrator.Config{Governor: orchestrator.DefaultGovernorConfig()},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return orchestrator.New(s.cfg, s.logger)
}

// Run creates the engine, starts it, and blocks until termination or
// context expiry. Expiry cancels the conversation before returning.
func Run(ctx context.Context, opts ...Option) (orchestrator.Termination, error) {
	engine, err := New(opts...)
	if err != nil {
		return orchestrator.Termination{}, err
	}
	if err := engine.Start(ctx); err != nil {
		return orchestrator.Termination{}, err
	}
	term, err := engine.Wait(ctx)
	if err != nil {
		engine.Cancel()
		return orchestrator.Termination{}, err
	}
	return term, nil
}
