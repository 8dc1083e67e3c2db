package testutil

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// RedisClient connects to a local Redis on the given logical DB and skips the
// test when none is reachable. The DB is flushed before and after the test.
func RedisClient(t testing.TB, db int) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379", DB: db})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		_ = client.Close()
	})
	return client
}
