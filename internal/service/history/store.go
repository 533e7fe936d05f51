// Package history keeps the recent conversation record per user. The store
// is an in-memory stand-in for the external persistence collaborator: append
// is at-least-once and reads tolerate duplicate entries.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxRecent 是单次历史查询可返回的最大轮数。
const MaxRecent = 20

// Turn records one completed exchange for audit and prompt context.
type Turn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Reply     string    `json:"reply"`
	Emotions  []string  `json:"emotions"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a concurrency-safe in-memory turn log.
type Store struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

// NewStore bootstraps the in-memory history store.
func NewStore() *Store {
	return &Store{turns: make(map[string][]Turn)}
}

// Append 记录一轮完整对话。调用方可以安全重试：重复记录不会破坏读取。
func (s *Store) Append(_ context.Context, turn Turn) Turn {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.turns[turn.UserID] = append(s.turns[turn.UserID], turn)
	s.mu.Unlock()

	return turn
}

// Recent returns up to n most recent turns for the user, newest first.
// n is capped at MaxRecent; the newest-first ordering is part of the
// contract and callers may rely on it.
func (s *Store) Recent(_ context.Context, userID string, n int) []Turn {
	if n < 1 || n > MaxRecent {
		n = MaxRecent
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.turns[userID]
	if len(stored) == 0 {
		return []Turn{}
	}

	start := len(stored) - n
	if start < 0 {
		start = 0
	}

	out := make([]Turn, 0, len(stored)-start)
	for i := len(stored) - 1; i >= start; i-- {
		out = append(out, stored[i])
	}
	return out
}
