package jwttoken

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "opsdash/pkg/domain"
	"opsdash/pkg/requestcontext"
)

var (
	principalID = id.NewPrincipalID()
	baseTime    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner("access-secret", "refresh-secret")
	require.NoError(t, err)
	return s
}

func at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func Test_SignAndVerify(t *testing.T) {
	s := newTestSigner(t)

	token, issued, err := s.Sign(at(baseTime), principalID, "admin", s.AccessTTL(), ClassAccess)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, baseTime.Add(15*time.Minute), issued.ExpiresAt)

	got, err := s.Verify(at(baseTime.Add(time.Minute)), token, ClassAccess)
	require.NoError(t, err)
	assert.Equal(t, principalID, got.PrincipalID)
	assert.Equal(t, "admin", got.Role)
	assert.Equal(t, issued.TokenID, got.TokenID)
	assert.True(t, issued.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, 14*time.Minute, got.Remaining(baseTime.Add(time.Minute)))
}

func Test_TokenIDsAreUnique(t *testing.T) {
	s := newTestSigner(t)
	_, a, err := s.Sign(at(baseTime), principalID, "user", time.Minute, ClassAccess)
	require.NoError(t, err)
	_, b, err := s.Sign(at(baseTime), principalID, "user", time.Minute, ClassAccess)
	require.NoError(t, err)
	assert.NotEqual(t, a.TokenID, b.TokenID)
}

func Test_Verify_Expired(t *testing.T) {
	s := newTestSigner(t)
	token, _, err := s.Sign(at(baseTime), principalID, "user", s.AccessTTL(), ClassAccess)
	require.NoError(t, err)

	_, err = s.Verify(at(baseTime.Add(15*time.Minute)), token, ClassAccess)
	assert.ErrorIs(t, err, ErrExpired)
}

func Test_Verify_RefreshOutlivesAccess(t *testing.T) {
	s := newTestSigner(t)
	refresh, _, err := s.Sign(at(baseTime), principalID, "user", s.RefreshTTL(), ClassRefresh)
	require.NoError(t, err)

	_, err = s.Verify(at(baseTime.Add(6*24*time.Hour)), refresh, ClassRefresh)
	require.NoError(t, err)

	_, err = s.Verify(at(baseTime.Add(7*24*time.Hour+time.Second)), refresh, ClassRefresh)
	assert.ErrorIs(t, err, ErrExpired)
}

func Test_Verify_ClassesAreNotInterchangeable(t *testing.T) {
	s := newTestSigner(t)
	refresh, _, err := s.Sign(at(baseTime), principalID, "user", s.RefreshTTL(), ClassRefresh)
	require.NoError(t, err)
	access, _, err := s.Sign(at(baseTime), principalID, "user", s.AccessTTL(), ClassAccess)
	require.NoError(t, err)

	_, err = s.Verify(at(baseTime), refresh, ClassAccess)
	assert.ErrorIs(t, err, ErrBadSignature)
	_, err = s.Verify(at(baseTime), access, ClassRefresh)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func Test_Verify_ForeignKey(t *testing.T) {
	s := newTestSigner(t)
	other, err := NewSigner("someone-else", "entirely")
	require.NoError(t, err)

	token, _, err := other.Sign(at(baseTime), principalID, "admin", time.Minute, ClassAccess)
	require.NoError(t, err)

	_, err = s.Verify(at(baseTime), token, ClassAccess)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func Test_Verify_Malformed(t *testing.T) {
	s := newTestSigner(t)
	for _, input := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := s.Verify(at(baseTime), input, ClassAccess)
		assert.ErrorIs(t, err, ErrMalformed, "input %q", input)
	}
}

func Test_Verify_RejectsAlgorithmConfusion(t *testing.T) {
	s := newTestSigner(t)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		Class: ClassAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   principalID.String(),
			ExpiresAt: jwt.NewNumericDate(baseTime.Add(time.Minute)),
		},
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.Verify(at(baseTime), unsigned, ClassAccess)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func Test_NewSigner_RejectsSharedSecret(t *testing.T) {
	_, err := NewSigner("same", "same")
	assert.Error(t, err)
	_, err = NewSigner("", "x")
	assert.Error(t, err)
}

func Test_Sign_RejectsNonPositiveTTL(t *testing.T) {
	s := newTestSigner(t)
	_, _, err := s.Sign(at(baseTime), principalID, "user", 0, ClassAccess)
	assert.Error(t, err)
}
