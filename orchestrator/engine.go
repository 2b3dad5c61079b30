package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/parley/ledger"
	"github.com/BaSui01/parley/speaker"
)

const tracerName = "github.com/BaSui01/parley/orchestrator"

// Config assembles one conversation. Roles are spoken in slice order,
// cyclically; the first role opens.
type Config struct {
	// ConversationID is assigned a UUID when empty.
	ConversationID string

	// Roles is the ordered list of participating parties. Minimum 2.
	Roles []RoleBinding

	// Governor ceilings. Zero value is rejected; use
	// DefaultGovernorConfig as a starting point.
	Governor GovernorConfig

	// DigestTokenBudget caps the digest injected into each speaker.
	// Zero means the full digest is always used. Requires TokenCounter.
	DigestTokenBudget int
	TokenCounter      ledger.Counter

	// OnTerminated, when set, fires exactly once on termination.
	OnTerminated TerminationFunc

	// Sink, when set, observes utterances and termination.
	Sink EventSink
}

// Engine runs one conversation's turn loop. Create with New, drive
// with Start/Cancel, observe with Status/Done/Wait.
type Engine struct {
	cfg    Config
	ledger *ledger.Ledger
	gov    *governor
	logger *zap.Logger
	tracer trace.Tracer

	mu              sync.Mutex
	state           State
	concluded       bool
	concludeReason  string
	turnCount       int
	activeRole      int
	reason          Reason
	err             error
	cancelRequested bool
	cancelRun       context.CancelFunc

	done       chan struct{}
	notifyOnce sync.Once
}

// New validates the configuration and creates an engine. Validation
// failures surface synchronously; no state machine is created for an
// invalid configuration.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Roles) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewRoles, len(cfg.Roles))
	}
	for i, r := range cfg.Roles {
		if err := r.Profile.Validate(); err != nil {
			return nil, fmt.Errorf("role %d: %w", i, err)
		}
		if r.Capability == nil {
			return nil, fmt.Errorf("role %d (%s): %w", i, r.Profile.RoleID, ErrNilCapability)
		}
	}
	if err := cfg.Governor.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConversationID == "" {
		cfg.ConversationID = uuid.New().String()
	}

	return &Engine{
		cfg:    cfg,
		ledger: ledger.New(cfg.ConversationID, logger),
		gov:    newGovernor(cfg.Governor),
		logger: logger.With(
			zap.String("component", "orchestrator"),
			zap.String("conversation_id", cfg.ConversationID),
		),
		tracer: otel.Tracer(tracerName),
		state:  StateNotStarted,
		done:   make(chan struct{}),
	}, nil
}

// ID returns the conversation ID.
func (e *Engine) ID() string {
	return e.cfg.ConversationID
}

// Ledger exposes the conversation's ledger for read access
// (Snapshot/RenderDigest are safe for concurrent readers).
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Start launches the turn loop in its own goroutine. It may be called
// once; subsequent calls return ErrAlreadyStarted.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateNotStarted {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancelRun = cancel
	e.state = StateRunning
	e.gov.start()
	e.mu.Unlock()

	e.logger.Info("conversation started",
		zap.Int("roles", len(e.cfg.Roles)),
		zap.Duration("max_duration", e.cfg.Governor.MaxDuration),
		zap.Int("max_turns", e.cfg.Governor.MaxTurns),
	)

	go e.run(runCtx)
	return nil
}

// Conclude is the declare-conclusion action bound into every turn.
// Idempotent: the first invocation wins, later ones are no-ops. The
// current turn finishes naturally; the flag is observed at the top of
// the next loop iteration.
func (e *Engine) Conclude(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.concluded {
		return
	}
	e.concluded = true
	e.concludeReason = reason
	e.logger.Info("conclusion declared", zap.String("reason", reason))
}

// Cancel forces termination. Authoritative for the loop: no further
// turns start, and a turn in flight is asked (via context) to stop;
// its result, if any, is discarded.
func (e *Engine) Cancel() {
	e.mu.Lock()
	if e.state == StateTerminated || e.state == StateNotStarted {
		e.mu.Unlock()
		return
	}
	e.cancelRequested = true
	cancel := e.cancelRun
	e.mu.Unlock()

	e.logger.Info("cancellation requested")
	if cancel != nil {
		cancel()
	}
}

// Status reports the externally visible state. Safe from any
// goroutine at any time.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		ConversationID:    e.cfg.ConversationID,
		State:             e.state,
		TurnCount:         e.turnCount,
		Concluded:         e.concluded,
		TerminationReason: e.reason,
	}
}

// Done is closed when the state machine reaches terminated.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until termination or context expiry. Waiting on an
// engine that was never started returns ErrNotStarted rather than
// blocking forever.
func (e *Engine) Wait(ctx context.Context) (Termination, error) {
	e.mu.Lock()
	notStarted := e.state == StateNotStarted
	e.mu.Unlock()
	if notStarted {
		return Termination{}, ErrNotStarted
	}

	select {
	case <-e.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return Termination{
			ConversationID: e.cfg.ConversationID,
			Reason:         e.reason,
			Err:            e.err,
			TurnCount:      e.turnCount,
			Transcript:     e.ledger.Snapshot(),
		}, nil
	case <-ctx.Done():
		return Termination{}, ctx.Err()
	}
}

// run is the turn loop. All fatal conditions are converted into a
// terminal state and reason here; nothing propagates to the caller.
func (e *Engine) run(ctx context.Context) {
	for {
		e.mu.Lock()
		cancelled := e.cancelRequested
		concluded := e.concluded
		turnCount := e.turnCount
		role := e.cfg.Roles[e.activeRole]
		opening := turnCount == 0
		e.mu.Unlock()

		if cancelled || ctx.Err() != nil {
			e.terminate(ReasonCancelled, nil)
			return
		}
		if concluded {
			e.terminate(ReasonNaturalConclusion, nil)
			return
		}
		if reason, ok := e.gov.exceeded(turnCount); ok {
			e.terminate(reason, nil)
			return
		}
		if err := e.gov.pace(ctx); err != nil {
			e.terminate(ReasonCancelled, nil)
			return
		}

		reason, err := e.executeTurn(ctx, role, turnCount, opening)
		if reason != "" {
			e.terminate(reason, err)
			return
		}

		e.mu.Lock()
		e.turnCount++
		e.activeRole = (e.activeRole + 1) % len(e.cfg.Roles)
		e.mu.Unlock()
	}
}

// executeTurn runs one complete turn: digest -> build -> speak ->
// append. A non-empty reason means the conversation must terminate
// without counting this turn.
func (e *Engine) executeTurn(ctx context.Context, role RoleBinding, turnIndex int, opening bool) (Reason, error) {
	digest, err := e.renderDigest()
	if err != nil {
		e.logger.Error("digest rendering failed", zap.Error(err))
		return ReasonFatalError, err
	}

	def := speaker.Build(speaker.BuildInput{
		Profile:       role.Profile,
		Digest:        digest,
		CustomPrompt:  role.CustomPrompt,
		OperatorNotes: role.OperatorNotes,
		Opening:       opening,
	})

	turnCtx, cancelTurn := e.gov.turnContext(ctx)
	defer cancelTurn()

	turnCtx, span := e.tracer.Start(turnCtx, "conversation.turn",
		trace.WithAttributes(
			attribute.String("conversation.id", e.cfg.ConversationID),
			attribute.String("conversation.role", string(role.Profile.RoleID)),
			attribute.Int("conversation.turn_index", turnIndex),
		),
	)
	defer span.End()

	started := time.Now()
	result, speakErr := role.Capability.Speak(turnCtx, TurnRequest{
		ConversationID: e.cfg.ConversationID,
		TurnIndex:      turnIndex,
		Definition:     def,
		Conclude:       e.Conclude,
	})

	// A result arriving after cancellation is discarded, not appended.
	e.mu.Lock()
	cancelled := e.cancelRequested
	e.mu.Unlock()
	if cancelled || ctx.Err() != nil {
		span.SetStatus(codes.Error, "cancelled")
		return ReasonCancelled, nil
	}

	if speakErr != nil {
		span.RecordError(speakErr)
		if errors.Is(speakErr, context.DeadlineExceeded) || turnCtx.Err() == context.DeadlineExceeded {
			span.SetStatus(codes.Error, "turn timeout")
			e.logger.Warn("turn exceeded its deadline",
				zap.Int("turn_index", turnIndex),
				zap.Duration("turn_timeout", e.cfg.Governor.TurnTimeout),
			)
			return ReasonTimeout, speakErr
		}
		span.SetStatus(codes.Error, "speak failed")
		e.logger.Error("speak capability failed",
			zap.Int("turn_index", turnIndex),
			zap.String("role", string(role.Profile.RoleID)),
			zap.Error(speakErr),
		)
		return ReasonFatalError, speakErr
	}
	if result == nil {
		err := fmt.Errorf("role %s returned no result", role.Profile.RoleID)
		span.SetStatus(codes.Error, err.Error())
		return ReasonFatalError, err
	}

	if result.Concluded {
		e.Conclude(result.ConclusionNote)
	}

	u, err := e.ledger.Append(def.SpeakerLabel, result.Content)
	if err != nil {
		span.SetStatus(codes.Error, "ledger append failed")
		return ReasonFatalError, err
	}
	if e.cfg.Sink != nil {
		e.cfg.Sink.UtteranceLogged(e.cfg.ConversationID, u)
	}

	e.logger.Debug("turn completed",
		zap.Int("turn_index", turnIndex),
		zap.String("speaker", def.SpeakerLabel),
		zap.Duration("duration", time.Since(started)),
	)
	return "", nil
}

func (e *Engine) renderDigest() (string, error) {
	if e.cfg.DigestTokenBudget > 0 && e.cfg.TokenCounter != nil {
		return e.ledger.RenderDigestBounded(e.cfg.TokenCounter, e.cfg.DigestTokenBudget)
	}
	return e.ledger.RenderDigest(), nil
}

// terminate drives concluding -> terminated exactly once: finalizes
// the ledger, records the reason, fires the one-shot notification,
// and releases waiters.
func (e *Engine) terminate(reason Reason, cause error) {
	e.notifyOnce.Do(func() {
		e.mu.Lock()
		e.state = StateConcluding
		e.reason = reason
		e.err = cause
		turnCount := e.turnCount
		cancel := e.cancelRun
		e.mu.Unlock()

		// Release the run context so an in-flight speak call is asked
		// to stop even when termination was not caller-initiated.
		if cancel != nil {
			cancel()
		}

		e.ledger.Finalize()

		e.mu.Lock()
		e.state = StateTerminated
		e.mu.Unlock()

		t := Termination{
			ConversationID: e.cfg.ConversationID,
			Reason:         reason,
			Err:            cause,
			TurnCount:      turnCount,
			Transcript:     e.ledger.Snapshot(),
		}

		e.logger.Info("conversation terminated",
			zap.String("reason", string(reason)),
			zap.Int("turn_count", turnCount),
			zap.Error(cause),
		)

		if e.cfg.Sink != nil {
			e.cfg.Sink.ConversationTerminated(t)
		}
		if e.cfg.OnTerminated != nil {
			e.cfg.OnTerminated(t)
		}
		close(e.done)
	})
}
