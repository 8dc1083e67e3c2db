package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript increments KEYS[1] and sets its expiry on the first hit of a
// window. A key left without a TTL is repaired so it cannot grow forever.
// Returns {count, pttl_ms}.
var incrementScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisStore shares counters across instances.
type RedisStore struct {
	client redis.Scripter
}

// NewRedis constructs a Redis-backed counter store.
func NewRedis(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (Count, error) {
	if ttl <= 0 {
		return Count{}, fmt.Errorf("window must be positive")
	}
	res, err := incrementScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return Count{}, fmt.Errorf("increment rate counter: %w", err)
	}
	if len(res) != 2 {
		return Count{}, fmt.Errorf("increment rate counter: unexpected reply %v", res)
	}
	return Count{Value: res[0], TTL: time.Duration(res[1]) * time.Millisecond}, nil
}
