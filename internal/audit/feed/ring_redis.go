package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"opsdash/internal/audit"
)

// RecentKey is the Redis list holding recent significant events, newest at the head.
const RecentKey = "security:recent"

// RedisRing keeps the recent-events list in Redis so every instance sees the same view.
type RedisRing struct {
	client   redis.Cmdable
	key      string
	capacity int
}

func NewRedisRing(client redis.Cmdable, capacity int) *RedisRing {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisRing{client: client, key: RecentKey, capacity: capacity}
}

// Push prepends the event and trims the list in one MULTI/EXEC so the bound
// holds under concurrent writers.
func (r *RedisRing) Push(ctx context.Context, event *audit.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, data)
		pipe.LTrim(ctx, r.key, 0, int64(r.capacity-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("push recent event: %w", err)
	}
	return nil
}

func (r *RedisRing) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > r.capacity {
		limit = r.capacity
	}
	raw, err := r.client.LRange(ctx, r.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent events: %w", err)
	}
	out := make([]audit.Event, 0, len(raw))
	for _, item := range raw {
		var e audit.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
