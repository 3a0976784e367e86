package memory

import (
	"context"
	"sync"
)

// SessionStore is an in-memory implementation of app.SessionStore mapping
// session tokens to player ids.
type SessionStore struct {
	mu      sync.RWMutex
	players map[string]int64
}

func NewSessionStore() *SessionStore {
	return &SessionStore{players: make(map[string]int64)}
}

func (s *SessionStore) Put(_ context.Context, token string, playerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[token] = playerID
	return nil
}

func (s *SessionStore) Lookup(_ context.Context, token string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.players[token]
	return id, ok, nil
}
