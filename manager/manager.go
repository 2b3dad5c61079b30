package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/parley/internal/metrics"
	"github.com/BaSui01/parley/ledger"
	"github.com/BaSui01/parley/orchestrator"
	"github.com/BaSui01/parley/persistence"
	"github.com/BaSui01/parley/stream"
)

// archiveTimeout bounds a single transcript archive write.
const archiveTimeout = 10 * time.Second

// defaultRetention keeps a terminated conversation addressable in
// memory for late Status and Wait callers before it is evicted.
const defaultRetention = time.Minute

// Config assembles a manager. Store, Broadcaster and Metrics are all
// optional; a nil field simply disables that integration.
type Config struct {
	// Governor is the default ceiling set applied to conversations
	// that don't bring their own.
	Governor orchestrator.GovernorConfig

	// DigestTokenBudget and TokenCounter are passed through to every
	// engine. Zero budget means unbounded digests.
	DigestTokenBudget int
	TokenCounter      ledger.Counter

	// Store archives finished transcripts.
	Store persistence.TranscriptStore

	// Broadcaster receives live conversation events.
	Broadcaster *stream.Broadcaster

	// Metrics records conversation and turn metrics.
	Metrics *metrics.Collector

	// RetentionPeriod is how long a terminated conversation stays in
	// the hosted map before its engine and ledger are released.
	// Transcript reads fall back to Store afterwards. Zero means
	// defaultRetention.
	RetentionPeriod time.Duration
}

// ConversationSpec describes one conversation to start.
type ConversationSpec struct {
	// ConversationID is assigned a UUID by the engine when empty.
	ConversationID string

	// Roles in speaking order; the first role opens.
	Roles []orchestrator.RoleBinding

	// Governor overrides the manager default when non-nil.
	Governor *orchestrator.GovernorConfig
}

// conversation is one hosted engine plus its bookkeeping.
type conversation struct {
	engine    *orchestrator.Engine
	startedAt time.Time

	mu        sync.Mutex
	lastEvent time.Time
}

// Manager hosts concurrent conversations addressed by ID.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu            sync.RWMutex
	conversations map[string]*conversation
	closed        bool

	// archives tracks in-flight transcript writes so Shutdown can
	// wait for them.
	archives *errgroup.Group
}

// New creates a manager. A zero-value Governor falls back to the
// package defaults.
func New(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Governor == (orchestrator.GovernorConfig{}) {
		cfg.Governor = orchestrator.DefaultGovernorConfig()
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = defaultRetention
	}
	return &Manager{
		cfg:           cfg,
		logger:        logger.With(zap.String("component", "manager")),
		conversations: make(map[string]*conversation),
		archives:      &errgroup.Group{},
	}
}

// StartConversation creates an engine for the described conversation,
// starts it, and returns its conversation ID.
func (m *Manager) StartConversation(ctx context.Context, spec ConversationSpec) (string, error) {
	gov := m.cfg.Governor
	if spec.Governor != nil {
		gov = *spec.Governor
	}

	c := &conversation{startedAt: time.Now()}
	c.lastEvent = c.startedAt

	engine, err := orchestrator.New(orchestrator.Config{
		ConversationID:    spec.ConversationID,
		Roles:             spec.Roles,
		Governor:          gov,
		DigestTokenBudget: m.cfg.DigestTokenBudget,
		TokenCounter:      m.cfg.TokenCounter,
		Sink:              &conversationSink{m: m, c: c},
	}, m.logger)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	c.engine = engine
	id := engine.ID()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	if _, exists := m.conversations[id]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("conversation %s already exists", id)
	}
	m.conversations[id] = c
	m.mu.Unlock()

	if err := engine.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.conversations, id)
		m.mu.Unlock()
		return "", err
	}

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordConversationStarted()
	}
	m.logger.Info("conversation hosted",
		zap.String("conversation_id", id),
		zap.Int("roles", len(spec.Roles)),
	)
	return id, nil
}

// Status reports the state of one conversation.
func (m *Manager) Status(id string) (orchestrator.Status, error) {
	c, err := m.lookup(id)
	if err != nil {
		return orchestrator.Status{}, err
	}
	return c.engine.Status(), nil
}

// List reports the status of every hosted conversation.
func (m *Manager) List() []orchestrator.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]orchestrator.Status, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, c.engine.Status())
	}
	return out
}

// Conclude declares the conclusion of one conversation.
func (m *Manager) Conclude(id, reason string) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	c.engine.Conclude(reason)
	return nil
}

// Cancel forces one conversation to terminate.
func (m *Manager) Cancel(id string) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	c.engine.Cancel()
	return nil
}

// Wait blocks until the conversation terminates or ctx expires.
func (m *Manager) Wait(ctx context.Context, id string) (orchestrator.Termination, error) {
	c, err := m.lookup(id)
	if err != nil {
		return orchestrator.Termination{}, err
	}
	return c.engine.Wait(ctx)
}

// Transcript returns the conversation's utterances, from the live
// ledger when the conversation is hosted, falling back to the archive
// store otherwise.
func (m *Manager) Transcript(ctx context.Context, id string) ([]ledger.Utterance, error) {
	if c, err := m.lookup(id); err == nil {
		return c.engine.Ledger().Snapshot(), nil
	}
	if m.cfg.Store == nil {
		return nil, ErrUnknownConversation
	}
	tr, err := m.cfg.Store.GetTranscript(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, ErrUnknownConversation
		}
		return nil, err
	}
	out := make([]ledger.Utterance, len(tr.Entries))
	for i, e := range tr.Entries {
		out[i] = ledger.Utterance{
			SpeakerLabel:  e.SpeakerLabel,
			Content:       e.Content,
			SequenceIndex: e.SequenceIndex,
			CreatedAt:     e.CreatedAt,
		}
	}
	return out, nil
}

// Shutdown cancels every running conversation, waits for the engines
// to terminate and for pending archive writes to land. The manager
// rejects new conversations afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	active := make([]*conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		active = append(active, c)
	}
	m.mu.Unlock()

	m.logger.Info("shutting down", zap.Int("conversations", len(active)))

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range active {
		c := c
		g.Go(func() error {
			c.engine.Cancel()
			select {
			case <-c.engine.Done():
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("waiting for conversations: %w", err)
	}
	if err := m.archives.Wait(); err != nil {
		return fmt.Errorf("waiting for archives: %w", err)
	}
	return nil
}

// evictAfter drops a terminated conversation from the hosted map once
// the retention period elapses, releasing its engine and ledger. The
// archive write holds its own copy of the transcript and is unaffected.
func (m *Manager) evictAfter(id string) {
	time.AfterFunc(m.cfg.RetentionPeriod, func() {
		m.mu.Lock()
		delete(m.conversations, id)
		m.mu.Unlock()
		m.logger.Debug("terminated conversation evicted",
			zap.String("conversation_id", id),
		)
	})
}

func (m *Manager) lookup(id string) (*conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrUnknownConversation
	}
	return c, nil
}

// archive writes a finished transcript to the store in the background.
func (m *Manager) archive(c *conversation, t orchestrator.Termination) {
	if m.cfg.Store == nil {
		return
	}
	m.archives.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		tr := &persistence.Transcript{
			ConversationID: t.ConversationID,
			Reason:         string(t.Reason),
			TurnCount:      t.TurnCount,
			StartedAt:      c.startedAt,
			EndedAt:        time.Now(),
			Entries:        persistence.FromLedger(t.Transcript),
		}

		started := time.Now()
		err := m.cfg.Store.SaveTranscript(ctx, tr)
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.RecordArchive(backendName(m.cfg.Store), time.Since(started), err)
		}
		if err != nil {
			m.logger.Error("transcript archive failed",
				zap.String("conversation_id", t.ConversationID),
				zap.Error(err),
			)
			return err
		}
		m.logger.Debug("transcript archived",
			zap.String("conversation_id", t.ConversationID),
			zap.Int("entries", len(tr.Entries)),
		)
		return nil
	})
}

func backendName(s persistence.TranscriptStore) string {
	switch s.(type) {
	case *persistence.MemoryTranscriptStore:
		return "memory"
	case *persistence.RedisTranscriptStore:
		return "redis"
	case *persistence.SQLiteTranscriptStore:
		return "sqlite"
	default:
		return "unknown"
	}
}

// conversationSink fans engine events into the broadcaster, the
// metrics collector and the archive path.
type conversationSink struct {
	m *Manager
	c *conversation
}

func (s *conversationSink) UtteranceLogged(conversationID string, u ledger.Utterance) {
	now := time.Now()
	s.c.mu.Lock()
	elapsed := now.Sub(s.c.lastEvent)
	s.c.lastEvent = now
	s.c.mu.Unlock()

	if s.m.cfg.Metrics != nil {
		s.m.cfg.Metrics.RecordTurn(u.SpeakerLabel, elapsed)
	}
	if s.m.cfg.Broadcaster != nil {
		s.m.cfg.Broadcaster.UtteranceLogged(conversationID, u)
	}
}

func (s *conversationSink) ConversationTerminated(t orchestrator.Termination) {
	if s.m.cfg.Metrics != nil {
		s.m.cfg.Metrics.RecordConversationTerminated(string(t.Reason))
	}
	if s.m.cfg.Broadcaster != nil {
		s.m.cfg.Broadcaster.ConversationTerminated(t)
	}
	s.m.archive(s.c, t)
	s.m.evictAfter(t.ConversationID)
}
