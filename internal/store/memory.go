package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store with an in-memory map. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*UserSnapshot
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*UserSnapshot),
	}
}

func (s *MemoryStore) LoadUser(_ context.Context, userID string) (*UserSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	// Return a copy to avoid external mutation.
	return snap.Clone(), nil
}

func (s *MemoryStore) SaveUser(_ context.Context, snap *UserSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[snap.Account.UserID] = snap.Clone()
	return nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, userID)
	return nil
}
