package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdash/internal/audit"
	id "opsdash/pkg/domain"
)

func TestInMemoryStore_ListRecent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	kinds := []audit.Kind{audit.KindLogin, audit.KindFailedLogin, audit.KindLogin}
	for i, k := range kinds {
		require.NoError(t, s.Append(ctx, &audit.Event{ID: string(rune('a' + i)), Kind: k}))
	}

	all, err := s.ListRecent(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)

	logins, err := s.ListRecent(ctx, 10, audit.KindLogin)
	require.NoError(t, err)
	assert.Len(t, logins, 2)

	one, err := s.ListRecent(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, MaxListLimit, clampLimit(0))
	assert.Equal(t, MaxListLimit, clampLimit(5000))
	assert.Equal(t, 25, clampLimit(25))
}

func TestPostgresStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	pid := id.NewPrincipalID()
	ts := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WithArgs("01HZX", "UNAUTHORIZED_ACCESS", sqlmock.AnyArg(), []byte(`{"requiredRole":"admin"}`), "10.0.0.1", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.Append(context.Background(), &audit.Event{
		ID:          "01HZX",
		Kind:        audit.KindUnauthorizedAccess,
		PrincipalID: &pid,
		Details:     map[string]any{"requiredRole": "admin"},
		ClientIP:    "10.0.0.1",
		Timestamp:   ts,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	pid := uuid.New()
	ts := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_events")).
		WithArgs("", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "principal_id", "details", "client_ip", "created_at"}).
			AddRow("02", "FAILED_LOGIN", nil, []byte(`{"email":"x@example.com"}`), "10.0.0.2", ts).
			AddRow("01", "LOGIN", pid.String(), []byte(`null`), "10.0.0.1", ts.Add(-time.Minute)))

	events, err := s.ListRecent(context.Background(), 50, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].PrincipalID)
	assert.Equal(t, "x@example.com", events[0].Details["email"])
	require.NotNil(t, events[1].PrincipalID)
	assert.Equal(t, id.PrincipalID(pid), *events[1].PrincipalID)
	assert.Nil(t, events[1].Details)
	require.NoError(t, mock.ExpectationsWereMet())
}
