// Package counter stores fixed-window request counters. Each Increment is a
// single atomic increment-with-TTL: the first hit in a window creates the
// counter with count 1 and a TTL of the full window.
package counter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"opsdash/pkg/requestcontext"
)

// Count is the post-increment state of one counter.
type Count struct {
	Value int64
	TTL   time.Duration
}

type window struct {
	count     int64
	expiresAt time.Time
}

// pruneEvery bounds how often expired windows are swept from the map.
const pruneEvery = 1024

// InMemoryStore keeps counters in process memory for tests and single-node dev.
// Time comes from requestcontext.Now so tests can pin the clock.
type InMemoryStore struct {
	mu       sync.Mutex
	counters map[string]*window
	ops      int
}

// NewInMemory creates an empty counter store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{counters: make(map[string]*window)}
}

// Increment adds one to key, opening a new window when none is live.
func (s *InMemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (Count, error) {
	if ttl <= 0 {
		return Count{}, fmt.Errorf("window must be positive")
	}
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ops++
	if s.ops%pruneEvery == 0 {
		s.pruneLocked(now)
	}

	w, ok := s.counters[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &window{expiresAt: now.Add(ttl)}
		s.counters[key] = w
	}
	w.count++
	return Count{Value: w.count, TTL: w.expiresAt.Sub(now)}, nil
}

// Len reports how many counters are held, live or not yet pruned.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

func (s *InMemoryStore) pruneLocked(now time.Time) {
	for key, w := range s.counters {
		if !now.Before(w.expiresAt) {
			delete(s.counters, key)
		}
	}
}
