package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdash/internal/audit"
	"opsdash/pkg/testutil"
)

func event(n int) *audit.Event {
	return &audit.Event{
		ID:        fmt.Sprintf("evt-%03d", n),
		Kind:      audit.KindFailedLogin,
		Timestamp: time.Date(2026, 1, 1, 0, 0, n, 0, time.UTC),
	}
}

func TestInMemoryRing_BoundHoldsUnderBurst(t *testing.T) {
	ring := NewInMemoryRing(DefaultCapacity)
	ctx := context.Background()

	require.NoError(t, ring.Push(ctx, event(0)))
	assert.Equal(t, 1, ring.Len())

	result := testutil.RunConcurrent(500, func(i int) error {
		return ring.Push(ctx, event(i+1))
	})
	assert.Equal(t, int32(500), result.Successes)
	assert.Equal(t, DefaultCapacity, ring.Len())
}

func TestInMemoryRing_EvictsOldestFirst(t *testing.T) {
	ring := NewInMemoryRing(3)
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, ring.Push(ctx, event(i)))
	}

	recent, err := ring.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "evt-004", recent[0].ID)
	assert.Equal(t, "evt-002", recent[2].ID)

	top, err := ring.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"evt-004"}, []string{top[0].ID})
}

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, event(7)))

	select {
	case msg := <-sub.Messages():
		var got audit.Event
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, "evt-007", got.ID)
	case <-time.After(time.Second):
		t.Fatal("no notification delivered")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.NoError(t, hub.Publish(ctx, event(8)))
	_, open := <-sub.Messages()
	assert.False(t, open)
}

func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	_, err := hub.Subscribe(ctx)
	require.NoError(t, err)

	for i := range subscriberBuffer * 3 {
		require.NoError(t, hub.Publish(ctx, event(i)))
	}
}

func TestRedisRing(t *testing.T) {
	client := testutil.RedisClient(t, 5)
	ring := NewRedisRing(client, 5)
	ctx := context.Background()

	for i := range 12 {
		require.NoError(t, ring.Push(ctx, event(i)))
	}
	n, err := client.LLen(ctx, RecentKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	recent, err := ring.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "evt-011", recent[0].ID)
	assert.Equal(t, "evt-010", recent[1].ID)
}

func TestRedisNotifier(t *testing.T) {
	client := testutil.RedisClient(t, 5)
	n := NewRedisNotifier(client)
	ctx := context.Background()

	sub, err := n.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, n.Publish(ctx, event(3)))

	select {
	case msg := <-sub.Messages():
		var got audit.Event
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, "evt-003", got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
	}
}
