package refreshtoken

import (
	"context"
	"fmt"
	"sync"
	"time"

	"opsdash/internal/auth/models"
	"opsdash/pkg/platform/sentinel"
)

// Error Contract:
// - FindValid returns ErrNotFound when the row is absent OR past expiresAt
// - Revoke of an absent token is not an error
// - Infrastructure failures are returned wrapped with context

// InMemoryStore keeps refresh rows in process for tests and dev.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*models.RefreshTokenRecord
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*models.RefreshTokenRecord)}
}

func (s *InMemoryStore) Store(_ context.Context, record *models.RefreshTokenRecord) error {
	if record == nil {
		return fmt.Errorf("refresh token is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[record.Token]; exists {
		return fmt.Errorf("refresh token already stored: %w", sentinel.ErrConflict)
	}
	clone := *record
	s.tokens[record.Token] = &clone
	return nil
}

func (s *InMemoryStore) FindValid(_ context.Context, token string, now time.Time) (*models.RefreshTokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tokens[token]
	if !ok || rec.IsExpired(now) {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	clone := *rec
	return &clone, nil
}

func (s *InMemoryStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func (s *InMemoryStore) RevokeAllExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, rec := range s.tokens {
		if rec.IsExpired(now) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of physically present rows, expired or not.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
