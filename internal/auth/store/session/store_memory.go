package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"opsdash/internal/auth/models"
	"opsdash/pkg/platform/sentinel"
	"opsdash/pkg/requestcontext"
)

// Error Contract:
// - Get returns ErrNotFound when no live record exists for the assertion
// - Delete of an absent key is not an error
// - Infrastructure failures are returned wrapped with context

type entry struct {
	record    models.SessionRecord
	expiresAt time.Time
}

// InMemoryStore keeps session records in process for tests and single-node dev.
// Expiry is evaluated against requestcontext.Now so tests can drive the clock.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]entry
}

// New constructs an empty in-memory session cache.
func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]entry)}
}

func (s *InMemoryStore) Put(ctx context.Context, accessToken string, record *models.SessionRecord, ttl time.Duration) error {
	if record == nil {
		return fmt.Errorf("session record is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive: %w", sentinel.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[accessToken] = entry{record: *record, expiresAt: requestcontext.Now(ctx).Add(ttl)}
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, accessToken string) (*models.SessionRecord, error) {
	now := requestcontext.Now(ctx)

	s.mu.RLock()
	e, ok := s.records[accessToken]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if !now.Before(e.expiresAt) {
		s.mu.Lock()
		if cur, still := s.records[accessToken]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.records, accessToken)
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("session expired: %w", sentinel.ErrNotFound)
	}
	record := e.record
	return &record, nil
}

func (s *InMemoryStore) Delete(_ context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, accessToken)
	return nil
}

// DeleteExpired drops records whose TTL elapsed before now.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.records {
		if !now.Before(e.expiresAt) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}
