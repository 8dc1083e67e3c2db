package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
	"opsdash/pkg/platform/sentinel"
)

const principalColumns = `id, email, name, role, active, approved, avatar_url, password_hash`

// PostgresStore reads principals from the user-management table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed principal store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save upserts a principal. Only operator tooling writes through this path.
func (s *PostgresStore) Save(ctx context.Context, p *models.Principal) error {
	if p == nil {
		return fmt.Errorf("principal is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (`+principalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			active = EXCLUDED.active,
			approved = EXCLUDED.approved,
			avatar_url = EXCLUDED.avatar_url,
			password_hash = EXCLUDED.password_hash
	`,
		uuid.UUID(p.ID), p.Email, p.Name, string(p.Role), p.Active, p.Approved, p.AvatarURL, p.PasswordHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("save principal: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Principal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, uuid.UUID(principalID))
	return s.scan(row, "find principal by id")
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE lower(email) = lower($1)`, email)
	return s.scan(row, "find principal by email")
}

func (s *PostgresStore) scan(row *sql.Row, op string) (*models.Principal, error) {
	var (
		p         models.Principal
		rawID     uuid.UUID
		role      string
		avatarURL sql.NullString
	)
	err := row.Scan(&rawID, &p.Email, &p.Name, &role, &p.Active, &p.Approved, &avatarURL, &p.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("principal not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.ID = id.PrincipalID(rawID)
	p.Role = models.Role(role)
	p.AvatarURL = avatarURL.String
	return &p, nil
}
