package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local session store for development and tests
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time // id -> expiry
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStore) Create(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = s.now().Add(ttl)
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	if !s.now().Before(expiry) {
		delete(s.sessions, sessionID)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CountActive(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, expiry := range s.sessions {
		if now.Before(expiry) {
			n++
		} else {
			delete(s.sessions, id)
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
