// Package store holds the durable audit log implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"opsdash/internal/audit"
)

// MaxListLimit caps a single audit log read.
const MaxListLimit = 200

// InMemoryStore is an append-only audit log for tests and dev.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event *audit.Event) error {
	if event == nil {
		return fmt.Errorf("audit event is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

// ListRecent returns up to limit events, newest first, optionally filtered by kind.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int, kind audit.Kind) ([]audit.Event, error) {
	limit = clampLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, 0, min(limit, len(s.events)))
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if kind != "" && s.events[i].Kind != kind {
			continue
		}
		out = append(out, s.events[i])
	}
	return out, nil
}

// Len returns the number of stored events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
