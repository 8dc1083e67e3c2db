package refreshtoken

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
	"opsdash/pkg/platform/sentinel"
)

// PostgresStore persists the Refresh Ledger. Only a SHA-256 digest of each
// assertion is stored.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed refresh ledger.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *PostgresStore) Store(ctx context.Context, record *models.RefreshTokenRecord) error {
	if record == nil {
		return fmt.Errorf("refresh token is required")
	}
	query := `
		INSERT INTO refresh_tokens (id, principal_id, token_hash, client_ip, user_agent, device, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(record.ID),
		uuid.UUID(record.PrincipalID),
		digest(record.Token),
		record.Client.IP,
		record.Client.UserAgent,
		record.Client.Device,
		record.CreatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("refresh token already stored: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// FindValid filters on expires_at at query time; expired rows are never returned
// even before the sweep removes them.
func (s *PostgresStore) FindValid(ctx context.Context, token string, now time.Time) (*models.RefreshTokenRecord, error) {
	query := `
		SELECT id, principal_id, client_ip, user_agent, device, created_at, expires_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND expires_at > $2
	`
	record, err := scanRefreshToken(s.db.QueryRowContext(ctx, query, digest(token), now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	record.Token = token
	return record, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, digest(token)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAllExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens rows: %w", err)
	}
	return int(rows), nil
}

type refreshTokenRow interface {
	Scan(dest ...any) error
}

func scanRefreshToken(row refreshTokenRow) (*models.RefreshTokenRecord, error) {
	var (
		record      models.RefreshTokenRecord
		rowID       uuid.UUID
		principalID uuid.UUID
	)
	if err := row.Scan(&rowID, &principalID,
		&record.Client.IP, &record.Client.UserAgent, &record.Client.Device,
		&record.CreatedAt, &record.ExpiresAt); err != nil {
		return nil, err
	}
	record.ID = id.RefreshTokenID(rowID)
	record.PrincipalID = id.PrincipalID(principalID)
	return &record, nil
}
