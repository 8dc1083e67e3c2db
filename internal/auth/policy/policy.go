// Package policy holds the authorization predicates evaluated after
// authentication. Every denial is recorded as an UNAUTHORIZED_ACCESS event
// before the 403 is written.
package policy

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"opsdash/internal/audit"
	authmw "opsdash/internal/auth/middleware"
	"opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/platform/httputil"
	"opsdash/pkg/requestcontext"
)

// Recorder records security events. It never fails the caller.
type Recorder interface {
	Record(ctx context.Context, kind audit.Kind, principalID id.PrincipalID, details map[string]any, clientIP string) (string, bool)
}

// OwnerFunc resolves the principal owning the resource a request targets.
type OwnerFunc func(r *http.Request) (id.PrincipalID, error)

// HasRole reports principal.Role == role.
func HasRole(p *models.Principal, role models.Role) bool {
	return p != nil && p.Role == role
}

// HasAnyRole reports whether principal.Role is one of roles.
func HasAnyRole(p *models.Principal, roles ...models.Role) bool {
	return p != nil && slices.Contains(roles, p.Role)
}

// Owns reports whether p owns the resource, with admins always allowed.
func Owns(p *models.Principal, owner id.PrincipalID) bool {
	if p == nil {
		return false
	}
	return p.ID == owner || p.Role == models.RoleAdmin
}

type Enforcer struct {
	recorder Recorder
	logger   *slog.Logger
}

func New(recorder Recorder, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{recorder: recorder, logger: logger}
}

// RequireRole admits only principals whose role is exactly role.
func (e *Enforcer) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return e.guard(role.String(), func(_ *http.Request, p *models.Principal) (bool, error) {
		return HasRole(p, role), nil
	})
}

// RequireAnyRole admits principals holding any of roles.
func (e *Enforcer) RequireAnyRole(roles ...models.Role) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return e.guard(strings.Join(names, "|"), func(_ *http.Request, p *models.Principal) (bool, error) {
		return HasAnyRole(p, roles...), nil
	})
}

// RequireOwnership admits the resource owner and admins.
func (e *Enforcer) RequireOwnership(owner OwnerFunc) func(http.Handler) http.Handler {
	return e.guard("owner|admin", func(r *http.Request, p *models.Principal) (bool, error) {
		ownerID, err := owner(r)
		if err != nil {
			return false, err
		}
		return Owns(p, ownerID), nil
	})
}

type predicate func(r *http.Request, p *models.Principal) (bool, error)

func (e *Enforcer) guard(required string, allow predicate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, ok := authmw.PrincipalFrom(ctx)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeMissingCredential, "authentication required"))
				return
			}

			allowed, err := allow(r, principal)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			if !allowed {
				e.deny(ctx, r, principal, required)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "requires role "+required))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (e *Enforcer) deny(ctx context.Context, r *http.Request, p *models.Principal, required string) {
	endpoint := r.Method + " " + r.URL.Path
	e.logger.WarnContext(ctx, "forbidden",
		"principal_id", p.ID.String(),
		"required_role", required,
		"actual_role", p.Role.String(),
		"endpoint", endpoint,
		"request_id", requestcontext.RequestID(ctx),
	)
	if e.recorder == nil {
		return
	}
	e.recorder.Record(ctx, audit.KindUnauthorizedAccess, p.ID, map[string]any{
		"requiredRole": required,
		"actualRole":   p.Role.String(),
		"endpoint":     endpoint,
	}, requestcontext.ClientIP(ctx))
}
