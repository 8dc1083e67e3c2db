package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"opsdash/internal/audit"
	id "opsdash/pkg/domain"
)

// PostgresStore appends audit events to the audit_events table. Details are JSONB.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event *audit.Event) error {
	if event == nil {
		return fmt.Errorf("audit event is required")
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	var principal uuid.NullUUID
	if event.PrincipalID != nil {
		principal = uuid.NullUUID{UUID: uuid.UUID(*event.PrincipalID), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, kind, principal_id, details, client_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ID, string(event.Kind), principal, details, event.ClientIP, event.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListRecent returns up to limit events, newest first, optionally filtered by kind.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int, kind audit.Kind) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, principal_id, details, client_ip, created_at
		FROM audit_events
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, string(kind), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e         audit.Event
			kindStr   string
			principal uuid.NullUUID
			details   []byte
		)
		if err := rows.Scan(&e.ID, &kindStr, &principal, &details, &e.ClientIP, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Kind = audit.Kind(kindStr)
		if principal.Valid {
			pid := id.PrincipalID(principal.UUID)
			e.PrincipalID = &pid
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
