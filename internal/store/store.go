// Package store is the append-only conversation log. It is the only
// component allowed to touch persisted message state.
package store

import (
	"context"
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

var (
	ErrSessionIDRequired = errors.New("store: session id is required")
	ErrContentRequired   = errors.New("store: message content is required")
	ErrInvalidRole       = errors.New("store: invalid message role")
)

// Message is one turn of a conversation. Immutable once written; ordering
// within a session is insertion order.
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	SessionID string    `bson:"session_id" json:"sessionId"`
	UserID    string    `bson:"user_id,omitempty" json:"userId,omitempty"`
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Store persists messages keyed by session identifier. A session has no
// record of its own: it exists exactly as long as messages carry its id.
type Store interface {
	// Append inserts a message, assigning its ID and CreatedAt, and
	// returns the stored copy. Existing messages are never touched.
	Append(ctx context.Context, msg Message) (*Message, error)

	// ListBySession returns all messages for a session in insertion
	// order. An unknown session yields an empty slice, not an error.
	ListBySession(ctx context.Context, sessionID string) ([]Message, error)
}

func validRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

func validate(msg Message) error {
	if msg.SessionID == "" {
		return ErrSessionIDRequired
	}
	if msg.Content == "" {
		return ErrContentRequired
	}
	if !validRole(msg.Role) {
		return ErrInvalidRole
	}
	return nil
}
