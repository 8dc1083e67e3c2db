// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "opsdash/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a PrincipalID where a RefreshTokenID is expected.
type (
	PrincipalID    uuid.UUID
	RefreshTokenID uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, token claims).

func ParsePrincipalID(s string) (PrincipalID, error) {
	id, err := parseUUID(s, "principal ID")
	return PrincipalID(id), err
}

func ParseRefreshTokenID(s string) (RefreshTokenID, error) {
	id, err := parseUUID(s, "refresh token ID")
	return RefreshTokenID(id), err
}

func NewPrincipalID() PrincipalID       { return PrincipalID(uuid.New()) }
func NewRefreshTokenID() RefreshTokenID { return RefreshTokenID(uuid.New()) }

func (id PrincipalID) String() string    { return uuid.UUID(id).String() }
func (id RefreshTokenID) String() string { return uuid.UUID(id).String() }

func (id PrincipalID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RefreshTokenID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// parseUUID is the shared validation logic. Nil UUIDs parse successfully;
// callers use IsNil() for business validation.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}

// MarshalText encodes the ID in canonical UUID form so JSON and SQL parameters stay readable.
func (id PrincipalID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *PrincipalID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id RefreshTokenID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *RefreshTokenID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
