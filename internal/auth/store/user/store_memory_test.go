package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
	"opsdash/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func (s *InMemoryStoreSuite) principal(email string) *models.Principal {
	return &models.Principal{
		ID:       id.NewPrincipalID(),
		Email:    email,
		Name:     "Jane Doe",
		Role:     models.RoleManager,
		Active:   true,
		Approved: true,
	}
}

func (s *InMemoryStoreSuite) TestSaveAndFind() {
	p := s.principal("jane.doe@example.com")
	require.NoError(s.T(), s.store.Save(context.Background(), p))

	byID, err := s.store.FindByID(context.Background(), p.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), p, byID)

	byEmail, err := s.store.FindByEmail(context.Background(), "JANE.DOE@example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), p.ID, byEmail.ID)
}

func (s *InMemoryStoreSuite) TestNotFound() {
	_, err := s.store.FindByID(context.Background(), id.NewPrincipalID())
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)

	_, err = s.store.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestEmailUnique() {
	require.NoError(s.T(), s.store.Save(context.Background(), s.principal("dup@example.com")))
	err := s.store.Save(context.Background(), s.principal("dup@example.com"))
	assert.ErrorIs(s.T(), err, sentinel.ErrConflict)
}

func (s *InMemoryStoreSuite) TestReturnedPrincipalIsACopy() {
	p := s.principal("copy@example.com")
	require.NoError(s.T(), s.store.Save(context.Background(), p))

	found, err := s.store.FindByID(context.Background(), p.ID)
	require.NoError(s.T(), err)
	found.Active = false

	again, err := s.store.FindByID(context.Background(), p.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), again.Active)
}
