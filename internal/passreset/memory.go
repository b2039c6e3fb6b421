package passreset

import (
	"context"
	"sync"
)

var _ TokenStore = (*MemoryTokenStore)(nil)

// MemoryTokenStore is an in-memory TokenStore for tests and local
// development. Safe for concurrent use.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]Token)}
}

func (s *MemoryTokenStore) Upsert(ctx context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.UserID] = token
	return nil
}

func (s *MemoryTokenStore) Find(ctx context.Context, userID string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[userID]
	if !ok {
		return nil, ErrNoToken
	}
	cp := token
	return &cp, nil
}

func (s *MemoryTokenStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[userID]; !ok {
		return ErrNoToken
	}
	delete(s.tokens, userID)
	return nil
}
