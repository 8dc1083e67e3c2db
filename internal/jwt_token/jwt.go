// Package jwttoken signs and verifies the HS256 access and refresh assertions.
package jwttoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "opsdash/pkg/domain"
	"opsdash/pkg/requestcontext"
)

// Class selects the signing secret. Access and refresh assertions never share a key.
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	issuer = "opsdash"
)

// Verification failures.
var (
	ErrExpired      = errors.New("assertion expired")
	ErrMalformed    = errors.New("assertion malformed")
	ErrBadSignature = errors.New("assertion signature invalid")
)

// Payload is the signed content of an assertion.
type Payload struct {
	PrincipalID id.PrincipalID
	Role        string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Remaining returns how long the assertion stays valid after now.
func (p *Payload) Remaining(now time.Time) time.Duration {
	return p.ExpiresAt.Sub(now)
}

type claims struct {
	Class Class  `json:"cls"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Signer is stateless after construction and safe for concurrent use.
type Signer struct {
	keys       map[Class][]byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Option configures a Signer.
type Option func(*Signer)

func WithAccessTTL(d time.Duration) Option  { return func(s *Signer) { s.accessTTL = d } }
func WithRefreshTTL(d time.Duration) Option { return func(s *Signer) { s.refreshTTL = d } }

// NewSigner requires two distinct, non-empty secrets.
func NewSigner(accessSecret, refreshSecret string, opts ...Option) (*Signer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("signing secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	s := &Signer{
		keys: map[Class][]byte{
			ClassAccess:  []byte(accessSecret),
			ClassRefresh: []byte(refreshSecret),
		},
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Signer) AccessTTL() time.Duration  { return s.accessTTL }
func (s *Signer) RefreshTTL() time.Duration { return s.refreshTTL }

// Sign issues an assertion for principalID valid for ttl from the request time.
// The returned payload carries the generated token ID and exact timestamps.
func (s *Signer) Sign(ctx context.Context, principalID id.PrincipalID, role string, ttl time.Duration, class Class) (string, *Payload, error) {
	key, ok := s.keys[class]
	if !ok {
		return "", nil, fmt.Errorf("unknown assertion class %q", class)
	}
	if ttl <= 0 {
		return "", nil, errors.New("ttl must be positive")
	}

	jti, err := newTokenID()
	if err != nil {
		return "", nil, err
	}
	// NumericDate has second precision; truncate so the payload matches what verifying returns.
	now := requestcontext.Now(ctx).Truncate(time.Second)
	p := &Payload{
		PrincipalID: principalID,
		Role:        role,
		TokenID:     jti,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Class: class,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   principalID.String(),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(p.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s assertion: %w", class, err)
	}
	return signed, p, nil
}

// Verify checks signature, algorithm, class and expiry against the request time.
// Failures are ErrExpired, ErrMalformed or ErrBadSignature.
func (s *Signer) Verify(ctx context.Context, assertion string, class Class) (*Payload, error) {
	key, ok := s.keys[class]
	if !ok {
		return nil, fmt.Errorf("unknown assertion class %q", class)
	}
	if assertion == "" {
		return nil, ErrMalformed
	}

	c := new(claims)
	_, err := jwt.ParseWithClaims(assertion, c,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return requestcontext.Now(ctx) }),
	)
	if err != nil {
		return nil, classify(err)
	}
	if c.Class != class {
		return nil, ErrBadSignature
	}

	principalID, err := id.ParsePrincipalID(c.Subject)
	if err != nil || principalID.IsNil() {
		return nil, ErrMalformed
	}
	p := &Payload{
		PrincipalID: principalID,
		Role:        c.Role,
		TokenID:     c.ID,
		ExpiresAt:   c.ExpiresAt.Time,
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time
	}
	return p, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrBadSignature
	default:
		return ErrMalformed
	}
}

func newTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
