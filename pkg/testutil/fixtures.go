package testutil

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	authmodels "opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
)

// TestPassword is the plaintext behind every fixture principal's hash.
const TestPassword = "correct-horse-battery"

// NewPrincipal returns an active, approved principal with a bcrypt hash of TestPassword.
func NewPrincipal(t testing.TB, email string, role authmodels.Role) *authmodels.Principal {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &authmodels.Principal{
		ID:           id.NewPrincipalID(),
		Email:        email,
		Name:         "Test " + string(role),
		Role:         role,
		Active:       true,
		Approved:     true,
		PasswordHash: string(hash),
	}
}
