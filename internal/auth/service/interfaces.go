package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"opsdash/internal/audit"
	"opsdash/internal/auth/models"
	jwttoken "opsdash/internal/jwt_token"
	id "opsdash/pkg/domain"
)

// Signer issues and verifies signed assertions.
type Signer interface {
	Sign(ctx context.Context, principalID id.PrincipalID, role string, ttl time.Duration, class jwttoken.Class) (string, *jwttoken.Payload, error)
	Verify(ctx context.Context, assertion string, class jwttoken.Class) (*jwttoken.Payload, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// SessionCache holds Session Records keyed by access assertion.
// Error Contract: Get returns sentinel.ErrNotFound for absent or expired entries.
type SessionCache interface {
	Put(ctx context.Context, accessToken string, record *models.SessionRecord, ttl time.Duration) error
	Get(ctx context.Context, accessToken string) (*models.SessionRecord, error)
	Delete(ctx context.Context, accessToken string) error
}

// RevocationStore holds markers for explicitly invalidated access assertions.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RefreshLedger is the durable refresh token table.
// Error Contract: FindValid returns sentinel.ErrNotFound for absent or expired rows.
type RefreshLedger interface {
	Store(ctx context.Context, record *models.RefreshTokenRecord) error
	FindValid(ctx context.Context, token string, now time.Time) (*models.RefreshTokenRecord, error)
	Revoke(ctx context.Context, token string) error
}

// PrincipalStore looks up dashboard users.
// Error Contract: Find methods return sentinel.ErrNotFound when the principal doesn't exist.
type PrincipalStore interface {
	FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Principal, error)
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
}

// Recorder durably records audit events. It never fails the caller.
type Recorder interface {
	Record(ctx context.Context, kind audit.Kind, principalID id.PrincipalID, details map[string]any, clientIP string) (string, bool)
}

// Mailer delivers password reset instructions.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email string) error
}

// SessionManager is the credential-pair lifecycle used by the login flows.
// *Manager implements it.
type SessionManager interface {
	CreateSession(ctx context.Context, principal *models.Principal, client models.ClientMetadata) (*models.TokenPair, error)
	RefreshSession(ctx context.Context, refreshAssertion string, principal *models.Principal) (*models.TokenPair, error)
	ValidateSession(ctx context.Context, accessAssertion string) *models.SessionRecord
	InvalidateSession(ctx context.Context, accessAssertion string) error
}
