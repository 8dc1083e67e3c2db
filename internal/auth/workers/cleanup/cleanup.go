package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"opsdash/internal/auth/metrics"
)

// RefreshLedger exposes the best-effort sweep of expired refresh rows.
type RefreshLedger interface {
	RevokeAllExpired(ctx context.Context, now time.Time) (int, error)
}

// SessionCache exposes cleanup for caches without native expiry (the in-memory store).
type SessionCache interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// CleanupResult summarizes the deletions performed by a cleanup run.
type CleanupResult struct {
	DeletedRefreshTokens int
	DeletedSessions      int
}

// CleanupService periodically removes expired auth artifacts. Validation
// always re-checks expiry, so a missed run never extends a credential's life.
type CleanupService struct {
	ledger   RefreshLedger
	sessions SessionCache
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// CleanupOption configures CleanupService.
type CleanupOption func(*CleanupService)

// WithCleanupInterval overrides the cleanup interval when greater than zero.
func WithCleanupInterval(interval time.Duration) CleanupOption {
	return func(s *CleanupService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithCleanupLogger overrides the logger used for cleanup errors.
func WithCleanupLogger(logger *slog.Logger) CleanupOption {
	return func(s *CleanupService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCleanupMetrics(m *metrics.Metrics) CleanupOption {
	return func(s *CleanupService) {
		s.metrics = m
	}
}

// WithSessionCache also sweeps an in-memory session cache. Redis expires keys itself.
func WithSessionCache(cache SessionCache) CleanupOption {
	return func(s *CleanupService) {
		s.sessions = cache
	}
}

// WithClock overrides the time source used for expiry comparisons.
func WithClock(now func() time.Time) CleanupOption {
	return func(s *CleanupService) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a CleanupService with the ledger and options applied.
func New(ledger RefreshLedger, opts ...CleanupOption) (*CleanupService, error) {
	if ledger == nil {
		return nil, fmt.Errorf("refresh ledger is required")
	}
	svc := &CleanupService{
		ledger:   ledger,
		interval: time.Hour,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs cleanup periodically until ctx is cancelled.
func (s *CleanupService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "auth cleanup failed", "error", err)
				continue
			}
			s.logger.InfoContext(ctx, "auth cleanup completed",
				"deleted_refresh_tokens", res.DeletedRefreshTokens,
				"deleted_sessions", res.DeletedSessions,
			)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep. It is safe to run concurrently and
// repeatedly since only rows already past expiry are removed.
func (s *CleanupService) RunOnce(ctx context.Context) (CleanupResult, error) {
	now := s.now()
	var res CleanupResult
	var errs []error

	deleted, err := s.ledger.RevokeAllExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired refresh tokens: %w", err))
	} else {
		res.DeletedRefreshTokens = deleted
		s.metrics.AddSweptRefreshRows(deleted)
	}

	if s.sessions != nil {
		deletedSessions, err := s.sessions.DeleteExpired(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete expired sessions: %w", err))
		} else {
			res.DeletedSessions = deletedSessions
		}
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}
