// Package revocation records explicitly invalidated access assertions by token ID
// so the degraded validation path can reject them after their cache entry is gone.
package revocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"opsdash/pkg/requestcontext"
)

// InMemoryStore is a process-local revocation list for tests and single-node dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> marker expiry
}

// NewInMemory creates an empty in-memory revocation list.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{revoked: make(map[string]time.Time)}
}

// Revoke marks jti as revoked until ttl elapses. Markers never need to outlive
// the assertion they block.
func (s *InMemoryStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return fmt.Errorf("jti is required")
	}
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = requestcontext.Now(ctx).Add(ttl)
	s.pruneLocked(requestcontext.Now(ctx))
	return nil
}

// IsRevoked reports whether an unexpired marker exists for jti.
func (s *InMemoryStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.revoked[jti]
	if !ok {
		return false, nil
	}
	return requestcontext.Now(ctx).Before(expiry), nil
}

func (s *InMemoryStore) pruneLocked(now time.Time) {
	for jti, expiry := range s.revoked {
		if !now.Before(expiry) {
			delete(s.revoked, jti)
		}
	}
}
