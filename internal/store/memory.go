package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Append(ctx context.Context, msg Message) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(msg); err != nil {
		return nil, err
	}

	msg.ID = uuid.NewString()
	msg.CreatedAt = s.now()

	s.mu.Lock()
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	s.mu.Unlock()

	return &msg, nil
}

func (s *MemoryStore) ListBySession(ctx context.Context, sessionID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[sessionID]
	out := make([]Message, len(stored))
	copy(out, stored)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
