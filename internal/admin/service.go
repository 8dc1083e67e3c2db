package admin

import (
	"context"
	"errors"

	"opsdash/internal/audit"
	dErrors "opsdash/pkg/domain-errors"
)

const (
	defaultLimit = 50
	// MaxLimit caps a single read of either source.
	MaxLimit = 200
)

// SecurityFeed is the bounded recent-events list of significant events.
type SecurityFeed interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// AuditLog is the durable audit store.
type AuditLog interface {
	ListRecent(ctx context.Context, limit int, kind audit.Kind) ([]audit.Event, error)
}

// Service provides read-only admin views over security events.
type Service struct {
	feed SecurityFeed
	log  AuditLog
}

// NewService creates the admin read service.
func NewService(feed SecurityFeed, log AuditLog) (*Service, error) {
	if feed == nil {
		return nil, errors.New("security feed is required")
	}
	if log == nil {
		return nil, errors.New("audit log is required")
	}
	return &Service{feed: feed, log: log}, nil
}

// SecurityEvents returns the newest significant events.
func (s *Service) SecurityEvents(ctx context.Context, limit int) ([]audit.Event, error) {
	events, err := s.feed.Recent(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "security feed unavailable")
	}
	return events, nil
}

// AuditEvents returns durable records newest first, optionally of one kind.
func (s *Service) AuditEvents(ctx context.Context, limit int, kind audit.Kind) ([]audit.Event, error) {
	events, err := s.log.ListRecent(ctx, normalizeLimit(limit), kind)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
	}
	return events, nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
