package user

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
	"opsdash/pkg/platform/sentinel"
)

// InMemoryStore holds principals for tests and dev.
type InMemoryStore struct {
	mu         sync.RWMutex
	principals map[id.PrincipalID]*models.Principal
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{principals: make(map[id.PrincipalID]*models.Principal)}
}

func (s *InMemoryStore) Save(_ context.Context, p *models.Principal) error {
	if p == nil {
		return fmt.Errorf("principal is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for existingID, existing := range s.principals {
		if existingID != p.ID && strings.EqualFold(existing.Email, p.Email) {
			return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
		}
	}
	clone := *p
	s.principals[p.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, principalID id.PrincipalID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.principals[principalID]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, fmt.Errorf("principal not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.principals {
		if strings.EqualFold(p.Email, email) {
			clone := *p
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("principal not found: %w", sentinel.ErrNotFound)
}
