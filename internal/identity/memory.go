package identity

import (
	"context"
	"sync"
	"time"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/ids"
)

var _ AccountStore = (*MemoryAccountStore)(nil)

// MemoryAccountStore is an in-memory AccountStore for tests and local
// development. Safe for concurrent use.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]*Account)}
}

func (s *MemoryAccountStore) Create(ctx context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.ID == "" {
		acct.ID = ids.New()
	}
	acct.Email = NormalizeEmail(acct.Email)
	for _, existing := range s.accounts {
		if existing.Email == acct.Email {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	acct.CreatedAt, acct.UpdatedAt = now, now
	cp := *acct
	s.accounts[acct.ID] = &cp
	return nil
}

func (s *MemoryAccountStore) Find(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *MemoryAccountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = NormalizeEmail(email)
	for _, acct := range s.accounts {
		if acct.Email == email {
			cp := *acct
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryAccountStore) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.PasswordHash = passwordHash
	t := at
	acct.LastPasswordChange = &t
	acct.IsFirstLogin = false
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryAccountStore) SetMustReset(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.MustResetPassword = true
	t := at
	acct.TempPasswordCreatedAt = &t
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryAccountStore) ClearResetState(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.MustResetPassword = false
	acct.IsFirstLogin = false
	t := at
	acct.LastPasswordChange = &t
	acct.UpdatedAt = time.Now().UTC()
	return nil
}
