// Package middleware gates requests on a live session and attaches the acting
// principal to the request context.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/platform/httputil"
	"opsdash/pkg/platform/sentinel"
	"opsdash/pkg/requestcontext"
)

// SessionValidator resolves an access assertion to a Session Record, or nil.
type SessionValidator interface {
	ValidateSession(ctx context.Context, accessAssertion string) *models.SessionRecord
}

// PrincipalLookup loads the principal behind a session.
type PrincipalLookup interface {
	FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Principal, error)
}

type (
	principalKey   struct{}
	accessTokenKey struct{}
)

// WithPrincipal stores the resolved principal.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached by RequireAuth.
func PrincipalFrom(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*models.Principal)
	return p, ok && p != nil
}

// AccessTokenFrom returns the access assertion the request was authenticated with.
func AccessTokenFrom(ctx context.Context) string {
	if v, ok := ctx.Value(accessTokenKey{}).(string); ok {
		return v
	}
	return ""
}

// BearerToken extracts the assertion from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticator turns an access assertion into an active principal. HTTP
// requests and the realtime handshake share it.
type Authenticator struct {
	sessions   SessionValidator
	principals PrincipalLookup
	logger     *slog.Logger
}

func NewAuthenticator(sessions SessionValidator, principals PrincipalLookup, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{sessions: sessions, principals: principals, logger: logger}
}

// Authenticate validates the session and reloads the principal. The role
// always comes from the principal store, never from the cached record, so a
// degraded session cannot carry a stale or missing role.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*models.Principal, error) {
	requestID := requestcontext.RequestID(ctx)
	if token == "" {
		a.logger.WarnContext(ctx, "unauthorized access - missing token", "request_id", requestID)
		return nil, dErrors.New(dErrors.CodeMissingCredential, "missing or invalid Authorization header")
	}

	record := a.sessions.ValidateSession(ctx, token)
	if record == nil {
		a.logger.WarnContext(ctx, "unauthorized access - invalid token", "request_id", requestID)
		return nil, dErrors.New(dErrors.CodeInvalidCredential, "invalid or expired token")
	}

	principal, err := a.principals.FindByID(ctx, record.PrincipalID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			a.logger.ErrorContext(ctx, "principal lookup failed",
				"error", err,
				"principal_id", record.PrincipalID.String(),
				"request_id", requestID,
			)
		}
		return nil, dErrors.New(dErrors.CodePrincipalInactive, "account is not active")
	}
	if !principal.Active {
		a.logger.WarnContext(ctx, "unauthorized access - inactive principal",
			"principal_id", principal.ID.String(),
			"request_id", requestID,
		)
		return nil, dErrors.New(dErrors.CodePrincipalInactive, "account is not active")
	}

	resolved := *principal
	resolved.PasswordHash = ""
	return &resolved, nil
}

// RequireAuth rejects requests without a live session with a 401 and
// otherwise attaches the principal and access assertion to the context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token, ok := BearerToken(r)
		if !ok {
			a.logger.WarnContext(ctx, "unauthorized access - missing bearer credential",
				"request_id", requestcontext.RequestID(ctx))
			httputil.WriteError(w, dErrors.New(dErrors.CodeMissingCredential, "missing or invalid Authorization header"))
			return
		}

		principal, err := a.Authenticate(ctx, token)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		ctx = WithPrincipal(ctx, principal)
		ctx = context.WithValue(ctx, accessTokenKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
