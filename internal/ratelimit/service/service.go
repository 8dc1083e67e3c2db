// Package service implements the fixed-window rate limiter.
//
// Usage:
//
//	limiter, _ := service.New(counter.NewRedis(client), service.WithConfig(cfg))
//	result, _ := limiter.Check(ctx, models.ClassLogin, clientIP)
//	if !result.Allowed {
//	    // 429 with Retry-After: result.RetryAfter
//	}
//
// The limiter fails open: when the counter store errors, or its circuit is
// open, the request is allowed and the result is marked FailedOpen.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"opsdash/internal/ratelimit/config"
	"opsdash/internal/ratelimit/metrics"
	"opsdash/internal/ratelimit/models"
	"opsdash/internal/ratelimit/store/counter"
	"opsdash/pkg/platform/circuit"
	"opsdash/pkg/platform/privacy"
	"opsdash/pkg/requestcontext"
)

// CounterStore performs an atomic increment-with-TTL.
type CounterStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (counter.Count, error)
}

const (
	outcomeAllowed    = "allowed"
	outcomeDenied     = "denied"
	outcomeFailedOpen = "failed_open"
)

// Limiter enforces per-class fixed windows keyed by client identity.
// Safe for concurrent use.
type Limiter struct {
	counters CounterStore
	config   *config.Config
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	warn     *rate.Sometimes
}

// Option configures a Limiter instance.
type Option func(*Limiter)

// WithConfig overrides the default classes.
func WithConfig(cfg *config.Config) Option {
	return func(l *Limiter) {
		if cfg != nil {
			l.config = cfg
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithBreaker replaces the counter store circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) {
		if b != nil {
			l.breaker = b
		}
	}
}

// New creates a limiter over counters.
func New(counters CounterStore, opts ...Option) (*Limiter, error) {
	if counters == nil {
		return nil, errors.New("counter store is required")
	}
	l := &Limiter{
		counters: counters,
		config:   config.DefaultConfig(),
		breaker:  circuit.New("ratelimit_counter", circuit.WithFailureThreshold(5), circuit.WithCooldown(10*time.Second)),
		logger:   slog.Default(),
		warn:     &rate.Sometimes{Interval: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check counts one request by identity under class and decides it.
// An error is returned only for an unconfigured class; store failures fail open.
func (l *Limiter) Check(ctx context.Context, class models.Class, identity string) (*models.Result, error) {
	limit, ok := l.config.Limit(class)
	if !ok {
		return nil, fmt.Errorf("no rate limit configured for class %q", class)
	}
	now := requestcontext.Now(ctx)

	if !l.breaker.Allow() {
		return l.failOpen(ctx, class, identity, limit, now, nil), nil
	}

	key := models.NewKey(class, identity)
	count, err := l.counters.Increment(ctx, key.String(), limit.Window)
	if err != nil {
		if change := l.breaker.RecordFailure(); change.Opened {
			l.metrics.BreakerOpened()
			l.logger.WarnContext(ctx, "rate limit store circuit opened",
				"breaker", l.breaker.Name(),
				"error", err,
			)
		}
		l.metrics.IncrementStoreErrors()
		return l.failOpen(ctx, class, identity, limit, now, err), nil
	}
	if change := l.breaker.RecordSuccess(); change.Closed {
		l.metrics.BreakerClosed()
		l.logger.InfoContext(ctx, "rate limit store circuit closed", "breaker", l.breaker.Name())
	}

	resetAt := now.Add(count.TTL)
	if count.Value > int64(limit.Max) {
		l.metrics.IncrementCheck(class.String(), outcomeDenied)
		return models.Denied(limit.Max, resetAt, count.TTL), nil
	}
	l.metrics.IncrementCheck(class.String(), outcomeAllowed)
	return models.Allowed(limit.Max, limit.Max-int(count.Value), resetAt), nil
}

// Limit exposes the configured limit for class.
func (l *Limiter) Limit(class models.Class) (config.Limit, bool) {
	return l.config.Limit(class)
}

func (l *Limiter) failOpen(ctx context.Context, class models.Class, identity string, limit config.Limit, now time.Time, err error) *models.Result {
	l.metrics.IncrementCheck(class.String(), outcomeFailedOpen)
	l.warn.Do(func() {
		attrs := []any{
			"class", class,
			"ip_prefix", privacy.AnonymizeIP(identity),
			"breaker_state", l.breaker.State().String(),
			"request_id", requestcontext.RequestID(ctx),
		}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		l.logger.WarnContext(ctx, "rate limit store unavailable, failing open", attrs...)
	})
	res := models.Allowed(limit.Max, limit.Max, now.Add(limit.Window))
	res.FailedOpen = true
	return res
}
