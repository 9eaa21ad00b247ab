package auth

import (
	"context"
	"strings"
	"sync"
)

// MemoryRepo keeps users in process memory. Used by tests and local
// development without postgres.
type MemoryRepo struct {
	mu           sync.RWMutex
	usersByName  map[string]User
	usersByEmail map[string]User
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		usersByName:  make(map[string]User),
		usersByEmail: make(map[string]User),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, user User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	nameKey := strings.ToLower(user.Username)
	emailKey := strings.ToLower(strings.TrimSpace(user.Email))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.usersByName[nameKey]; exists {
		return ErrUserExists
	}
	if emailKey != "" {
		if _, exists := r.usersByEmail[emailKey]; exists {
			return ErrEmailExists
		}
	}

	r.usersByName[nameKey] = user
	if emailKey != "" {
		r.usersByEmail[emailKey] = user
	}

	return nil
}

func (r *MemoryRepo) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := strings.ToLower(strings.TrimSpace(identifier))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if user, ok := r.usersByName[key]; ok {
		return &user, nil
	}
	if user, ok := r.usersByEmail[key]; ok {
		return &user, nil
	}

	return nil, ErrUserNotFound
}

var _ UserRepo = (*MemoryRepo)(nil)
