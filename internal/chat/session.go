package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session transcript.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Store keeps per-session transcripts. Transcripts are append-only and
// implementations must be safe for concurrent use across sessions.
type Store interface {
	// History returns a copy of the transcript for id, registering an empty
	// one if the session is new.
	History(ctx context.Context, id string) ([]Turn, error)
	Append(ctx context.Context, id string, turn Turn) error
	Sessions(ctx context.Context) ([]string, error)
}

// ==================== MemoryStore ====================

// MemoryStore is a process-local Store. Transcripts are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Turn)}
}

func (s *MemoryStore) History(_ context.Context, id string) ([]Turn, error) {
	s.mu.RLock()
	turns, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return append([]Turn(nil), turns...), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if turns, ok := s.sessions[id]; ok {
		return append([]Turn(nil), turns...), nil
	}
	s.sessions[id] = nil
	return []Turn{}, nil
}

func (s *MemoryStore) Append(_ context.Context, id string, turn Turn) error {
	if turn.Time.IsZero() {
		turn.Time = time.Now()
	}
	s.mu.Lock()
	s.sessions[id] = append(s.sessions[id], turn)
	s.mu.Unlock()
	return nil
}

// Sessions lists known session ids in sorted order.
func (s *MemoryStore) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}
