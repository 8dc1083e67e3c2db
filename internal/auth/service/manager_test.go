package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"opsdash/internal/auth/models"
	refreshtoken "opsdash/internal/auth/store/refresh-token"
	"opsdash/internal/auth/store/revocation"
	"opsdash/internal/auth/store/session"
	jwttoken "opsdash/internal/jwt_token"
	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/requestcontext"
	"opsdash/pkg/testutil"
)

var managerEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type ManagerSuite struct {
	suite.Suite
	signer      *jwttoken.Signer
	cache       *session.InMemoryStore
	ledger      *refreshtoken.InMemoryStore
	revocations *revocation.InMemoryStore
	manager     *Manager
	principal   *models.Principal
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	var err error
	s.signer, err = jwttoken.NewSigner("access-secret-for-tests", "refresh-secret-for-tests")
	s.Require().NoError(err)
	s.cache = session.New()
	s.ledger = refreshtoken.NewInMemory()
	s.revocations = revocation.NewInMemory()
	s.manager = s.newManager(s.cache, s.ledger, WithRevocations(s.revocations))
	s.principal = testutil.NewPrincipal(s.T(), "ops@example.com", models.RoleManager)
}

func (s *ManagerSuite) newManager(cache SessionCache, ledger RefreshLedger, opts ...ManagerOption) *Manager {
	opts = append(opts, WithManagerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	m, err := NewManager(s.signer, cache, ledger, opts...)
	s.Require().NoError(err)
	return m
}

func (s *ManagerSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), managerEpoch.Add(offset))
}

func (s *ManagerSuite) create() *models.TokenPair {
	pair, err := s.manager.CreateSession(s.at(0), s.principal, models.ClientMetadata{IP: "10.0.0.7", UserAgent: "curl/8.0"})
	s.Require().NoError(err)
	return pair
}

func (s *ManagerSuite) TestCreateThenValidateReturnsPrincipal() {
	for _, role := range []models.Role{models.RoleAdmin, models.RoleManager, models.RoleUser} {
		p := testutil.NewPrincipal(s.T(), string(role)+"@example.com", role)
		pair, err := s.manager.CreateSession(s.at(0), p, models.ClientMetadata{})
		s.Require().NoError(err)

		record := s.manager.ValidateSession(s.at(0), pair.AccessToken)
		s.Require().NotNil(record)
		s.Equal(p.ID, record.PrincipalID)
		s.Equal(role, record.Role)
		s.Equal(p.Email, record.Profile.Email)
		s.False(record.Degraded)
	}
}

func (s *ManagerSuite) TestCreatePersistsLedgerRow() {
	pair := s.create()

	row, err := s.ledger.FindValid(s.at(0), pair.RefreshToken, managerEpoch)
	s.Require().NoError(err)
	s.Equal(s.principal.ID, row.PrincipalID)
	s.Equal("10.0.0.7", row.Client.IP)
	s.Equal(managerEpoch.Add(jwttoken.DefaultRefreshTTL), row.ExpiresAt)
	s.Equal(managerEpoch.Add(jwttoken.DefaultAccessTTL), pair.AccessExpiresAt)
}

func (s *ManagerSuite) TestSessionExpiresWithAssertionWhileRefreshStaysValid() {
	pair := s.create()

	s.NotNil(s.manager.ValidateSession(s.at(14*time.Minute+59*time.Second), pair.AccessToken))
	s.Nil(s.manager.ValidateSession(s.at(15*time.Minute), pair.AccessToken))

	_, err := s.ledger.FindValid(s.at(15*time.Minute), pair.RefreshToken, managerEpoch.Add(15*time.Minute))
	s.NoError(err)
	refreshed, err := s.manager.RefreshSession(s.at(15*time.Minute), pair.RefreshToken, s.principal)
	s.Require().NoError(err)
	s.NotNil(s.manager.ValidateSession(s.at(15*time.Minute), refreshed.AccessToken))
}

func (s *ManagerSuite) TestCacheMissFallsBackToDegradedRecord() {
	pair := s.create()
	s.Require().NoError(s.cache.Delete(s.at(0), pair.AccessToken))

	record := s.manager.ValidateSession(s.at(time.Minute), pair.AccessToken)
	s.Require().NotNil(record)
	s.True(record.Degraded)
	s.Equal(s.principal.ID, record.PrincipalID)
	s.Empty(record.Role)
	s.Empty(record.Profile.Email)
}

func (s *ManagerSuite) TestInvalidateThenValidateNeverReturnsFullRecord() {
	pair := s.create()
	s.Require().NoError(s.manager.InvalidateSession(s.at(time.Minute), pair.AccessToken))

	s.Nil(s.manager.ValidateSession(s.at(2*time.Minute), pair.AccessToken))
}

func (s *ManagerSuite) TestInvalidateWithoutMarkersDegrades() {
	m := s.newManager(s.cache, s.ledger)
	pair, err := m.CreateSession(s.at(0), s.principal, models.ClientMetadata{})
	s.Require().NoError(err)
	s.Require().NoError(m.InvalidateSession(s.at(0), pair.AccessToken))

	record := m.ValidateSession(s.at(0), pair.AccessToken)
	if record != nil {
		s.True(record.Degraded)
		s.Empty(record.Role)
	}
}

func (s *ManagerSuite) TestInvalidateIsIdempotent() {
	pair := s.create()
	s.NoError(s.manager.InvalidateSession(s.at(0), pair.AccessToken))
	s.NoError(s.manager.InvalidateSession(s.at(0), pair.AccessToken))
	s.NoError(s.manager.InvalidateSession(s.at(0), "not-an-assertion"))
}

func (s *ManagerSuite) TestRevocationMarkerLivesAsLongAsAssertion() {
	pair := s.create()
	s.Require().NoError(s.manager.InvalidateSession(s.at(5*time.Minute), pair.AccessToken))

	payload, err := s.signer.Verify(s.at(0), pair.AccessToken, jwttoken.ClassAccess)
	s.Require().NoError(err)
	revoked, err := s.revocations.IsRevoked(s.at(14*time.Minute), payload.TokenID)
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *ManagerSuite) TestExpiredRefreshAssertionIsRejectedEvenWithLedgerRow() {
	pair := s.create()
	at := jwttoken.DefaultRefreshTTL + time.Hour

	_, err := s.manager.RefreshSession(s.at(at), pair.RefreshToken, s.principal)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidRefreshToken))
	s.Equal(1, s.ledger.Count())
}

func (s *ManagerSuite) TestRefreshRejectsAccessAssertion() {
	pair := s.create()
	_, err := s.manager.RefreshSession(s.at(0), pair.AccessToken, s.principal)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidRefreshToken))
}

func (s *ManagerSuite) TestRefreshRejectsOtherPrincipal() {
	pair := s.create()
	other := testutil.NewPrincipal(s.T(), "other@example.com", models.RoleAdmin)

	_, err := s.manager.RefreshSession(s.at(0), pair.RefreshToken, other)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidRefreshToken))
}

func (s *ManagerSuite) TestRefreshDoesNotAddLedgerRows() {
	pair := s.create()
	for i := range 3 {
		_, err := s.manager.RefreshSession(s.at(time.Duration(i)*time.Hour), pair.RefreshToken, s.principal)
		s.Require().NoError(err)
	}
	s.Equal(1, s.ledger.Count())
}

func (s *ManagerSuite) TestLedgerFailureFailsCreate() {
	cache := session.New()
	m := s.newManager(cache, failingLedger{})

	_, err := m.CreateSession(s.at(0), s.principal, models.ClientMetadata{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ManagerSuite) TestCacheFailureStillReturnsUsablePair() {
	m := s.newManager(failingCache{}, s.ledger)

	pair, err := m.CreateSession(s.at(0), s.principal, models.ClientMetadata{})
	s.Require().NoError(err)

	record := m.ValidateSession(s.at(0), pair.AccessToken)
	s.Require().NotNil(record)
	s.True(record.Degraded)
	s.Equal(s.principal.ID, record.PrincipalID)
}

func (s *ManagerSuite) TestRevocationStoreErrorRejectsDegradedSession() {
	cache := session.New()
	m := s.newManager(cache, s.ledger, WithRevocations(failingRevocations{}))
	pair, err := m.CreateSession(s.at(0), s.principal, models.ClientMetadata{})
	s.Require().NoError(err)
	s.Require().NoError(cache.Delete(s.at(0), pair.AccessToken))

	s.Nil(m.ValidateSession(s.at(0), pair.AccessToken))
}

func (s *ManagerSuite) TestRejectsGarbage() {
	s.Nil(s.manager.ValidateSession(s.at(0), ""))
	s.Nil(s.manager.ValidateSession(s.at(0), "garbage"))

	pair := s.create()
	s.Nil(s.manager.ValidateSession(s.at(0), pair.RefreshToken), "refresh assertion must not validate as access")
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	signer, err := jwttoken.NewSigner("a", "b")
	require.NoError(t, err)

	_, err = NewManager(nil, session.New(), refreshtoken.NewInMemory())
	assert.Error(t, err)
	_, err = NewManager(signer, nil, refreshtoken.NewInMemory())
	assert.Error(t, err)
	_, err = NewManager(signer, session.New(), nil)
	assert.Error(t, err)
}

type failingLedger struct{}

func (failingLedger) Store(context.Context, *models.RefreshTokenRecord) error {
	return errors.New("connection reset")
}

func (failingLedger) FindValid(context.Context, string, time.Time) (*models.RefreshTokenRecord, error) {
	return nil, errors.New("connection reset")
}

func (failingLedger) Revoke(context.Context, string) error { return errors.New("connection reset") }

type failingCache struct{}

func (failingCache) Put(context.Context, string, *models.SessionRecord, time.Duration) error {
	return errors.New("redis: connection refused")
}

func (failingCache) Get(context.Context, string) (*models.SessionRecord, error) {
	return nil, errors.New("redis: connection refused")
}

func (failingCache) Delete(context.Context, string) error {
	return errors.New("redis: connection refused")
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Duration) error {
	return errors.New("redis: connection refused")
}

func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}
