package staterepo

import (
	"context"
	"sync"
	"time"
)

// memoryStore is an in-process IStateStore used in tests and when running
// without Redis. Expiry is evaluated lazily on read, which is enough to
// mirror the store's TTL semantics for a single process.
type memoryStore struct {
	ttl time.Duration

	mu        sync.Mutex
	confirmed map[string]bool
	started   map[string]time.Time
	expiresAt map[string]time.Time
	emails    map[string]string
}

func NewMemory(ttl time.Duration) IStateStore {
	return &memoryStore{
		ttl:       ttl,
		confirmed: make(map[string]bool),
		started:   make(map[string]time.Time),
		expiresAt: make(map[string]time.Time),
		emails:    make(map[string]string),
	}
}

func (s *memoryStore) InitAttempt(_ context.Context, walletAddress string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed[walletAddress] = false
	s.started[walletAddress] = startedAt
	s.expiresAt[walletAddress] = time.Now().Add(s.ttl)
	return nil
}

func (s *memoryStore) ConfirmPayment(_ context.Context, walletAddress string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmed[walletAddress] {
		return false, nil
	}
	s.confirmed[walletAddress] = true
	if _, ok := s.expiresAt[walletAddress]; !ok {
		s.expiresAt[walletAddress] = time.Now().Add(s.ttl)
	}
	return true, nil
}

func (s *memoryStore) Status(_ context.Context, walletAddress string) (bool, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.expiresAt[walletAddress]
	if !ok || time.Now().After(expiry) {
		return false, time.Time{}, false, nil
	}
	return s.confirmed[walletAddress], s.started[walletAddress], true, nil
}

func (s *memoryStore) SetEmail(_ context.Context, username, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails[username] = email
	return nil
}

func (s *memoryStore) GetEmail(_ context.Context, username string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.emails[username]
	return email, ok, nil
}
