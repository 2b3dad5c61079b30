package persistence

import (
	"context"
	"sort"
	"sync"
)

// MemoryTranscriptStore keeps transcripts in process memory. Suitable
// for development and tests; data is lost on restart.
type MemoryTranscriptStore struct {
	mu          sync.RWMutex
	transcripts map[string]*Transcript
	closed      bool
}

// NewMemoryTranscriptStore creates an empty in-memory store.
func NewMemoryTranscriptStore() *MemoryTranscriptStore {
	return &MemoryTranscriptStore{
		transcripts: make(map[string]*Transcript),
	}
}

func (s *MemoryTranscriptStore) SaveTranscript(_ context.Context, t *Transcript) error {
	if t == nil || t.ConversationID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	cp := *t
	cp.Entries = append([]Entry(nil), t.Entries...)
	s.transcripts[t.ConversationID] = &cp
	return nil
}

func (s *MemoryTranscriptStore) GetTranscript(_ context.Context, conversationID string) (*Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	t, ok := s.transcripts[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	cp.Entries = append([]Entry(nil), t.Entries...)
	return &cp, nil
}

func (s *MemoryTranscriptStore) ListTranscripts(_ context.Context, limit int) ([]*Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]*Transcript, 0, len(s.transcripts))
	for _, t := range s.transcripts {
		cp := *t
		cp.Entries = append([]Entry(nil), t.Entries...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryTranscriptStore) DeleteTranscript(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.transcripts[conversationID]; !ok {
		return ErrNotFound
	}
	delete(s.transcripts, conversationID)
	return nil
}

func (s *MemoryTranscriptStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryTranscriptStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
