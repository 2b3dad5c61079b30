package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/parley/ledger"
)

var (
	// ErrNotFound 未找到指定会话的归档
	ErrNotFound = errors.New("transcript not found")

	// ErrInvalidInput 输入无效
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreClosed 存储已关闭
	ErrStoreClosed = errors.New("store is closed")
)

// Entry is one archived utterance.
type Entry struct {
	SpeakerLabel  string    `json:"speaker_label"`
	Content       string    `json:"content"`
	SequenceIndex int       `json:"sequence_index"`
	CreatedAt     time.Time `json:"created_at"`
}

// Transcript is the archived record of one terminated conversation.
type Transcript struct {
	ConversationID string    `json:"conversation_id"`
	Reason         string    `json:"reason"`
	TurnCount      int       `json:"turn_count"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	Entries        []Entry   `json:"entries"`
}

// FromLedger converts a final ledger snapshot into archive entries.
func FromLedger(utterances []ledger.Utterance) []Entry {
	entries := make([]Entry, len(utterances))
	for i, u := range utterances {
		entries[i] = Entry{
			SpeakerLabel:  u.SpeakerLabel,
			Content:       u.Content,
			SequenceIndex: u.SequenceIndex,
			CreatedAt:     u.CreatedAt,
		}
	}
	return entries
}

// TranscriptStore persists terminated conversation transcripts.
type TranscriptStore interface {
	// SaveTranscript archives one transcript. Saving the same
	// conversation twice overwrites the earlier record.
	SaveTranscript(ctx context.Context, t *Transcript) error

	// GetTranscript retrieves a transcript by conversation ID.
	GetTranscript(ctx context.Context, conversationID string) (*Transcript, error)

	// ListTranscripts returns up to limit transcripts, most recently
	// ended first. limit <= 0 returns all.
	ListTranscripts(ctx context.Context, limit int) ([]*Transcript, error)

	// DeleteTranscript removes a transcript.
	DeleteTranscript(ctx context.Context, conversationID string) error

	// Ping checks store health.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// Backend selects a TranscriptStore implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendSQLite Backend = "sqlite"
)

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// SQLiteConfig configures the embedded SQLite store.
type SQLiteConfig struct {
	// Path is the database file; ":memory:" opens an ephemeral one.
	Path string `json:"path" yaml:"path"`
}

// StoreConfig selects and configures a transcript store backend.
type StoreConfig struct {
	Backend Backend      `json:"backend" yaml:"backend"`
	Redis   RedisConfig  `json:"redis" yaml:"redis"`
	SQLite  SQLiteConfig `json:"sqlite" yaml:"sqlite"`
}

// DefaultStoreConfig returns the in-memory backend.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Backend: BackendMemory}
}

// NewTranscriptStore builds the store selected by cfg.Backend.
func NewTranscriptStore(cfg StoreConfig, logger *zap.Logger) (TranscriptStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryTranscriptStore(), nil
	case BackendRedis:
		return NewRedisTranscriptStore(cfg.Redis)
	case BackendSQLite:
		return NewSQLiteTranscriptStore(cfg.SQLite, logger)
	default:
		return nil, fmt.Errorf("unknown transcript store backend: %q", cfg.Backend)
	}
}
