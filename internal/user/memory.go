package user

import (
	"context"
	"sync"
)

// InMemory implements Store with a process-local map.
type InMemory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewInMemory creates an empty in-memory user registry.
func NewInMemory() *InMemory {
	return &InMemory{users: make(map[string]User)}
}

func (s *InMemory) Upsert(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if ok {
		if u.DisplayName != "" {
			existing.DisplayName = u.DisplayName
		}
		existing.LastSeenAt = u.LastSeenAt
		s.users[u.ID] = existing
		return nil
	}
	s.users[u.ID] = *u
	return nil
}

func (s *InMemory) Get(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *InMemory) List(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		copied := u
		out = append(out, &copied)
	}
	return out, nil
}

func (s *InMemory) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}
