package session

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

type memoryEntry struct {
	session *models.LinkSession
	expiry  time.Time
}

// MemoryStore keeps link-session markers in process memory.
// Suitable for single-instance deployments only.
type MemoryStore struct {
	entries map[string]*memoryEntry
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Put stores the marker, replacing any previous one for the session
func (s *MemoryStore) Put(_ context.Context, sessionID string, session *models.LinkSession, ttl time.Duration) error {
	copied := *session

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = &memoryEntry{session: &copied, expiry: s.now().Add(ttl)}
	return nil
}

// Take returns and removes the marker in one step
func (s *MemoryStore) Take(_ context.Context, sessionID string) (*models.LinkSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	delete(s.entries, sessionID)

	if !s.now().Before(entry.expiry) {
		return nil, models.ErrNotFound
	}
	return entry.session, nil
}

// Cleanup drops expired markers and reports how many were removed
func (s *MemoryStore) Cleanup(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, entry := range s.entries {
		if !now.Before(entry.expiry) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored markers, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
