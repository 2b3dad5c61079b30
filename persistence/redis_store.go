package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "parley:"

// RedisTranscriptStore is a Redis-backed TranscriptStore for
// distributed deployments. Transcripts are stored as JSON values with
// a sorted-set index ordered by end time.
type RedisTranscriptStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisTranscriptStore connects to Redis and verifies the
// connection before returning.
func NewRedisTranscriptStore(cfg RedisConfig) (*RedisTranscriptStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &RedisTranscriptStore{
		client:    client,
		keyPrefix: prefix + "transcript:",
	}, nil
}

func (s *RedisTranscriptStore) dataKey(conversationID string) string {
	return s.keyPrefix + "data:" + conversationID
}

func (s *RedisTranscriptStore) indexKey() string {
	return s.keyPrefix + "index"
}

func (s *RedisTranscriptStore) SaveTranscript(ctx context.Context, t *Transcript) error {
	if t == nil || t.ConversationID == "" {
		return ErrInvalidInput
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(t.ConversationID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(t.EndedAt.UnixNano()),
		Member: t.ConversationID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

func (s *RedisTranscriptStore) GetTranscript(ctx context.Context, conversationID string) (*Transcript, error) {
	data, err := s.client.Get(ctx, s.dataKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	return &t, nil
}

func (s *RedisTranscriptStore) ListTranscripts(ctx context.Context, limit int) ([]*Transcript, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	out := make([]*Transcript, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTranscript(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Index entry outlived its data; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *RedisTranscriptStore) DeleteTranscript(ctx context.Context, conversationID string) error {
	removed, err := s.client.Del(ctx, s.dataKey(conversationID)).Result()
	if err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	if err := s.client.ZRem(ctx, s.indexKey(), conversationID).Err(); err != nil {
		return fmt.Errorf("delete transcript index: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisTranscriptStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisTranscriptStore) Close() error {
	return s.client.Close()
}
