// Package audit records security-relevant actions. The durable write happens
// synchronously; significant events are then fanned out to the recent-events
// feed and the live notification channel by a background worker.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	auditmetrics "opsdash/internal/audit/metrics"
	id "opsdash/pkg/domain"
	"opsdash/pkg/platform/privacy"
	"opsdash/pkg/requestcontext"
)

// ErrWriteFailed marks a lost durable write. It is logged, never returned to callers.
var ErrWriteFailed = errors.New("audit write failed")

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 3 * time.Second
)

// Store is the durable, append-only event log.
type Store interface {
	Append(ctx context.Context, event *Event) error
}

// Feed is the bounded list of recent significant events.
type Feed interface {
	Push(ctx context.Context, event *Event) error
}

// Notifier publishes significant events to live subscribers.
type Notifier interface {
	Publish(ctx context.Context, event *Event) error
}

// Recorder implements the audit pipeline. Record never fails the caller.
type Recorder struct {
	store    Store
	feed     Feed
	notifier Notifier
	logger   *slog.Logger
	metrics  *auditmetrics.Metrics

	writeTimeout time.Duration
	queue        chan *Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

func WithMetrics(m *auditmetrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithFeed sets the recent-events list significant events are pushed to.
func WithFeed(f Feed) Option {
	return func(r *Recorder) { r.feed = f }
}

// WithNotifier sets the live notification publisher.
func WithNotifier(n Notifier) Option {
	return func(r *Recorder) { r.notifier = n }
}

// WithQueueSize bounds the fan-out queue. Events beyond it are dropped.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan *Event, n)
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// NewRecorder starts the fan-out worker. Call Close to drain it.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:        store,
		logger:       slog.New(slog.DiscardHandler),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.queue == nil {
		r.queue = make(chan *Event, defaultQueueSize)
	}
	r.wg.Add(1)
	go r.fanOutLoop()
	return r
}

// Record durably appends an event and returns its ID. When the write fails it
// logs and returns "", false; it never panics or propagates the failure.
// The write is detached from ctx cancellation so an aborted request still leaves a record.
func (r *Recorder) Record(ctx context.Context, kind Kind, principalID id.PrincipalID, details map[string]any, clientIP string) (string, bool) {
	now := requestcontext.Now(ctx).UTC()
	event := &Event{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Kind:      kind,
		Details:   details,
		ClientIP:  clientIP,
		Timestamp: now,
	}
	if !principalID.IsNil() {
		pid := principalID
		event.PrincipalID = &pid
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()
	if err := r.append(writeCtx, event); err != nil {
		r.metrics.IncWriteFailure()
		r.logger.ErrorContext(ctx, "audit event not recorded",
			"error", errors.Join(ErrWriteFailed, err),
			"kind", kind,
			"client_ip", privacy.AnonymizeIP(clientIP),
			"request_id", requestcontext.RequestID(ctx),
		)
		return "", false
	}
	r.metrics.IncRecorded(string(kind))

	if kind.IsSignificant() {
		r.enqueue(ctx, event)
	}
	return event.ID, true
}

func (r *Recorder) append(ctx context.Context, event *Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("audit store panicked: %v", p)
		}
	}()
	if r.store == nil {
		return errors.New("no audit store configured")
	}
	return r.store.Append(ctx, event)
}

func (r *Recorder) enqueue(ctx context.Context, event *Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.metrics.IncFanOutDropped()
		return
	}
	select {
	case r.queue <- event:
		r.metrics.SetQueueDepth(len(r.queue))
	default:
		r.metrics.IncFanOutDropped()
		r.logger.WarnContext(ctx, "audit fan-out queue full, live notification dropped",
			"event_id", event.ID,
			"kind", event.Kind,
		)
	}
}

func (r *Recorder) fanOutLoop() {
	defer r.wg.Done()
	for event := range r.queue {
		r.metrics.SetQueueDepth(len(r.queue))
		r.fanOut(event)
	}
}

func (r *Recorder) fanOut(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if r.feed != nil {
		if err := safely(func() error { return r.feed.Push(ctx, event) }); err != nil {
			r.metrics.IncFanOutFailure("feed")
			r.logger.WarnContext(ctx, "failed to push recent security event", "error", err, "event_id", event.ID)
		}
	}
	if r.notifier != nil {
		if err := safely(func() error { return r.notifier.Publish(ctx, event) }); err != nil {
			r.metrics.IncFanOutFailure("notify")
			r.logger.WarnContext(ctx, "failed to publish security notification", "error", err, "event_id", event.ID)
		}
	}
}

func safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

// Close stops accepting fan-out work and waits for queued events to be delivered.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}
