package models

import (
	"time"

	id "opsdash/pkg/domain"
	dErrors "opsdash/pkg/domain-errors"
)

// Principal is the acting dashboard user, owned by the user-management store.
// The auth core reads principals and never mutates them.
type Principal struct {
	ID           id.PrincipalID
	Email        string
	Name         string
	Role         Role
	Active       bool
	Approved     bool
	AvatarURL    string
	PasswordHash string
}

// CanAuthenticate reports whether the principal may hold a session.
func (p *Principal) CanAuthenticate() bool {
	return p.Active && p.Approved
}

// Snapshot returns the denormalized fields cached in a SessionRecord.
func (p *Principal) Snapshot() Profile {
	return Profile{Email: p.Email, Name: p.Name, AvatarURL: p.AvatarURL}
}

// Profile holds display fields carried in the session cache for fast reads.
type Profile struct {
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// SessionRecord is the cached view of a live access assertion.
//
// Degraded records are built from the assertion alone when the cache has no
// entry. They carry only PrincipalID; Role and Profile must not be trusted.
type SessionRecord struct {
	PrincipalID id.PrincipalID `json:"principal_id"`
	Role        Role           `json:"role"`
	TokenID     string         `json:"jti"`
	IssuedAt    time.Time      `json:"issued_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Profile     Profile        `json:"profile"`
	Degraded    bool           `json:"-"`
}

// RefreshTokenRecord is a durable Refresh Ledger row. Revocation deletes the row.
type RefreshTokenRecord struct {
	ID          id.RefreshTokenID
	PrincipalID id.PrincipalID
	Token       string
	Client      ClientMetadata
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// IsExpired reports whether the row must no longer be honored. Physical
// presence in the ledger is never enough on its own.
func (r *RefreshTokenRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// NewRefreshToken constructs a RefreshTokenRecord with invariant checks.
func NewRefreshToken(principalID id.PrincipalID, token string, client ClientMetadata, createdAt, expiresAt time.Time) (*RefreshTokenRecord, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "refresh token cannot be empty")
	}
	if principalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "refresh token requires a principal")
	}
	if !expiresAt.After(createdAt) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "refresh token expiry must be after creation")
	}
	return &RefreshTokenRecord{
		ID:          id.NewRefreshTokenID(),
		PrincipalID: principalID,
		Token:       token,
		Client:      client,
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
	}, nil
}

// TokenPair is the result of a successful session creation.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
