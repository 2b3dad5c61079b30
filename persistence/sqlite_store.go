package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// transcriptRow is the gorm model backing the sqlite store. Entries
// are serialized to JSON; the archive is read back whole, never
// queried per-utterance.
type transcriptRow struct {
	ConversationID string `gorm:"primaryKey;column:conversation_id"`
	Reason         string `gorm:"column:reason"`
	TurnCount      int    `gorm:"column:turn_count"`
	StartedAt      time.Time
	EndedAt        time.Time `gorm:"index"`
	EntriesJSON    string    `gorm:"column:entries_json"`
}

func (transcriptRow) TableName() string { return "transcripts" }

// SQLiteTranscriptStore is an embedded single-node TranscriptStore
// using the pure-Go sqlite driver, so no cgo is required.
type SQLiteTranscriptStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteTranscriptStore opens (and if needed creates) the database
// file and migrates the transcripts table.
func NewSQLiteTranscriptStore(cfg SQLiteConfig, logger *zap.Logger) (*SQLiteTranscriptStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := cfg.Path
	if path == "" {
		path = "parley.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&transcriptRow{}); err != nil {
		return nil, fmt.Errorf("migrate transcripts table: %w", err)
	}

	return &SQLiteTranscriptStore{
		db:     db,
		logger: logger.With(zap.String("component", "sqlite_transcript_store")),
	}, nil
}

func (s *SQLiteTranscriptStore) SaveTranscript(ctx context.Context, t *Transcript) error {
	if t == nil || t.ConversationID == "" {
		return ErrInvalidInput
	}

	entries, err := json.Marshal(t.Entries)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	row := transcriptRow{
		ConversationID: t.ConversationID,
		Reason:         t.Reason,
		TurnCount:      t.TurnCount,
		StartedAt:      t.StartedAt,
		EndedAt:        t.EndedAt,
		EntriesJSON:    string(entries),
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

func (s *SQLiteTranscriptStore) GetTranscript(ctx context.Context, conversationID string) (*Transcript, error) {
	var row transcriptRow
	err := s.db.WithContext(ctx).First(&row, "conversation_id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	return rowToTranscript(&row)
}

func (s *SQLiteTranscriptStore) ListTranscripts(ctx context.Context, limit int) ([]*Transcript, error) {
	q := s.db.WithContext(ctx).Order("ended_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []transcriptRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	out := make([]*Transcript, 0, len(rows))
	for i := range rows {
		t, err := rowToTranscript(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *SQLiteTranscriptStore) DeleteTranscript(ctx context.Context, conversationID string) error {
	res := s.db.WithContext(ctx).Delete(&transcriptRow{}, "conversation_id = ?", conversationID)
	if res.Error != nil {
		return fmt.Errorf("delete transcript: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteTranscriptStore) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *SQLiteTranscriptStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func rowToTranscript(row *transcriptRow) (*Transcript, error) {
	var entries []Entry
	if row.EntriesJSON != "" {
		if err := json.Unmarshal([]byte(row.EntriesJSON), &entries); err != nil {
			return nil, fmt.Errorf("unmarshal entries: %w", err)
		}
	}
	return &Transcript{
		ConversationID: row.ConversationID,
		Reason:         row.Reason,
		TurnCount:      row.TurnCount,
		StartedAt:      row.StartedAt,
		EndedAt:        row.EndedAt,
		Entries:        entries,
	}, nil
}
