// Package feed mirrors significant audit events into a bounded recent-events
// list and a publish/subscribe channel for live admin notification.
package feed

import (
	"context"
	"sync"

	"opsdash/internal/audit"
)

// DefaultCapacity bounds the recent-events list.
const DefaultCapacity = 100

// InMemoryRing keeps the most recent significant events, evicting oldest first.
type InMemoryRing struct {
	mu       sync.RWMutex
	capacity int
	events   []audit.Event // oldest first
}

func NewInMemoryRing(capacity int) *InMemoryRing {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &InMemoryRing{capacity: capacity, events: make([]audit.Event, 0, capacity)}
}

func (r *InMemoryRing) Push(_ context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == r.capacity {
		copy(r.events, r.events[1:])
		r.events = r.events[:r.capacity-1]
	}
	r.events = append(r.events, *event)
	return nil
}

// Recent returns up to limit events, newest first.
func (r *InMemoryRing) Recent(_ context.Context, limit int) ([]audit.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]audit.Event, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}

func (r *InMemoryRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}
