package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"opsdash/internal/audit"
)

// Channel is the pub/sub topic carrying JSON-encoded significant events.
const Channel = "admin:notifications"

const subscriberBuffer = 32

// Subscription delivers raw notification payloads until closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// RedisNotifier publishes on the shared Redis channel. Subscribe is used by
// the realtime gateway.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisNotifier(client redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{client: client, channel: Channel}
}

func (n *RedisNotifier) Publish(ctx context.Context, event *audit.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context) (Subscription, error) {
	ps := n.client.Subscribe(ctx, n.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", n.channel, err)
	}
	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
				// slow consumer; drop rather than stall the shared connection
			}
		}
	}()
	return &redisSubscription{ps: ps, out: out}, nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan []byte
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error { return s.ps.Close() }

// Hub is the in-process notifier used when Redis is not configured.
type Hub struct {
	mu   sync.RWMutex
	subs map[*hubSubscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*hubSubscription]struct{})}
}

func (h *Hub) Publish(_ context.Context, event *audit.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.out <- data:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context) (Subscription, error) {
	sub := &hubSubscription{hub: h, out: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub, nil
}

type hubSubscription struct {
	hub  *Hub
	out  chan []byte
	once sync.Once
}

func (s *hubSubscription) Messages() <-chan []byte { return s.out }

func (s *hubSubscription) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.out)
	})
	return nil
}
