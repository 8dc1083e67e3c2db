package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces markers: revoked:<jti>.
const KeyPrefix = "revoked:"

// RedisStore shares revocation markers across instances. Redis expires them.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedis constructs a Redis-backed revocation list.
func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return fmt.Errorf("jti is required")
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, KeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("write revocation marker: %w", err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, KeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("read revocation marker: %w", err)
	}
	return n > 0, nil
}
