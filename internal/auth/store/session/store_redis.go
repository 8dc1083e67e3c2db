package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"opsdash/internal/auth/models"
	"opsdash/pkg/platform/sentinel"
)

// KeyPrefix namespaces session records: session:<access-assertion>.
const KeyPrefix = "session:"

// RedisStore persists session records in Redis with a per-key TTL.
// This is the implementation for deployments where several instances share sessions.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedis constructs a Redis-backed session cache.
func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func key(accessToken string) string {
	return KeyPrefix + accessToken
}

func (s *RedisStore) Put(ctx context.Context, accessToken string, record *models.SessionRecord, ttl time.Duration) error {
	if record == nil {
		return fmt.Errorf("session record is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive: %w", sentinel.ErrInvalidInput)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, key(accessToken), data, ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, accessToken string) (*models.SessionRecord, error) {
	data, err := s.client.Get(ctx, key(accessToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var record models.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) Delete(ctx context.Context, accessToken string) error {
	if err := s.client.Del(ctx, key(accessToken)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
