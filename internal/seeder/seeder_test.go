package seeder

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"opsdash/internal/auth/models"
	"opsdash/internal/auth/store/user"
)

func TestSeedPrincipals(t *testing.T) {
	ctx := context.Background()
	store := user.NewInMemory()
	s := New(store, slog.New(slog.DiscardHandler), WithBcryptCost(bcrypt.MinCost))

	seeded, err := s.SeedPrincipals(ctx, "demo-password")
	require.NoError(t, err)
	require.Len(t, seeded, len(demoPrincipals))

	admin, err := store.FindByEmail(ctx, "admin@opsdash.local")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.True(t, admin.CanAuthenticate())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("demo-password")))

	pending, err := store.FindByEmail(ctx, "pending@opsdash.local")
	require.NoError(t, err)
	assert.False(t, pending.CanAuthenticate())
}

func TestSeedPrincipalsRequiresPassword(t *testing.T) {
	_, err := New(user.NewInMemory(), nil).SeedPrincipals(context.Background(), "")
	assert.Error(t, err)
}
