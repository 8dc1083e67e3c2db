// Package seeder populates in-memory stores with demo principals for local
// development.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
)

// PrincipalStore is the write side the seeder needs.
type PrincipalStore interface {
	Save(ctx context.Context, p *models.Principal) error
}

// Seeder populates a principal store with demo data.
type Seeder struct {
	principals PrincipalStore
	logger     *slog.Logger
	cost       int
}

// Option configures a Seeder.
type Option func(*Seeder)

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Seeder) { s.cost = cost }
}

func New(principals PrincipalStore, logger *slog.Logger, opts ...Option) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Seeder{principals: principals, logger: logger, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type demoPrincipal struct {
	email    string
	name     string
	role     models.Role
	active   bool
	approved bool
}

var demoPrincipals = []demoPrincipal{
	{"admin@opsdash.local", "Ada Admin", models.RoleAdmin, true, true},
	{"manager@opsdash.local", "Max Manager", models.RoleManager, true, true},
	{"user@opsdash.local", "Uma User", models.RoleUser, true, true},
	// Exercise the two principal-state rejections.
	{"pending@opsdash.local", "Pat Pending", models.RoleUser, true, false},
	{"disabled@opsdash.local", "Dee Disabled", models.RoleUser, false, true},
}

// SeedPrincipals saves every demo principal with the shared password and
// returns them in a fixed order.
func (s *Seeder) SeedPrincipals(ctx context.Context, password string) ([]*models.Principal, error) {
	if password == "" {
		return nil, errors.New("seed password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	seeded := make([]*models.Principal, 0, len(demoPrincipals))
	for _, d := range demoPrincipals {
		p := &models.Principal{
			ID:           id.NewPrincipalID(),
			Email:        d.email,
			Name:         d.name,
			Role:         d.role,
			Active:       d.active,
			Approved:     d.approved,
			PasswordHash: string(hash),
		}
		if err := s.principals.Save(ctx, p); err != nil {
			return nil, fmt.Errorf("save %s: %w", d.email, err)
		}
		seeded = append(seeded, p)
	}

	s.logger.InfoContext(ctx, "demo principals seeded", "count", len(seeded))
	return seeded, nil
}
