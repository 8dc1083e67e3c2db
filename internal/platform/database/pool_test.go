package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdash/internal/platform/config"
)

func TestNewWithoutURL(t *testing.T) {
	pool, err := New(context.Background(), config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, pool)

	assert.ErrorIs(t, pool.Health(context.Background()), ErrNotConfigured)
	assert.NoError(t, pool.Close())
}

func TestHealthPings(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()

	pool := FromDB(db)
	require.NoError(t, pool.Health(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectClose()
	require.NoError(t, pool.Close())
}
