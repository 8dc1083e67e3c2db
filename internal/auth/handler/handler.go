package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "opsdash/internal/auth/middleware"
	"opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/platform/httputil"
	"opsdash/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/auth-mocks.go -package=mocks Service

// Service defines the authentication flows behind the handlers.
type Service interface {
	Login(ctx context.Context, req *models.LoginRequest) (*models.TokenResult, error)
	Refresh(ctx context.Context, req *models.RefreshRequest) (*models.AccessTokenResult, error)
	Logout(ctx context.Context, principal *models.Principal, accessToken, refreshToken string) error
	Me(ctx context.Context, principalID id.PrincipalID) (*models.PrincipalResult, error)
	RequestPasswordReset(ctx context.Context, req *models.PasswordResetRequest) error
}

// Middlewares are applied per route by Register. Nil entries are skipped.
type Middlewares struct {
	RequireAuth  func(http.Handler) http.Handler
	LoginLimit   func(http.Handler) http.Handler
	RefreshLimit func(http.Handler) http.Handler
	ResetLimit   func(http.Handler) http.Handler
}

// Handler serves the /auth endpoints.
type Handler struct {
	auth   Service
	logger *slog.Logger
}

func New(auth Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{auth: auth, logger: logger}
}

// Register mounts the auth routes. Login, refresh and password reset sit
// behind their rate limiters so a denied attempt never reaches credential
// verification.
func (h *Handler) Register(r chi.Router, mw Middlewares) {
	r.With(chain(mw.LoginLimit)...).Post("/auth/login", h.HandleLogin)
	r.With(chain(mw.RefreshLimit)...).Post("/auth/refresh", h.HandleRefresh)
	r.With(chain(mw.ResetLimit)...).Post("/auth/password-reset", h.HandlePasswordReset)

	r.Group(func(r chi.Router) {
		r.Use(chain(mw.RequireAuth)...)
		r.Post("/auth/logout", h.HandleLogout)
		r.Get("/auth/me", h.HandleMe)
	})
}

func chain(mws ...func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	out := make([]func(http.Handler) http.Handler, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// HandleLogin implements POST /auth/login.
//
// Input: { "email": "ops@example.com", "password": "..." }
// Output: { "accessToken": "...", "refreshToken": "...", "expiresIn": 900, "tokenType": "Bearer" }
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[models.LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.auth.Login(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleRefresh implements POST /auth/refresh. The refresh assertion travels
// in the JSON body.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[models.RefreshRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.auth.Refresh(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "token refresh failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleLogout implements POST /auth/logout. The body is optional.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	principal, ok := authmw.PrincipalFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeMissingCredential, "authentication required"))
		return
	}

	var req models.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.WarnContext(ctx, "failed to decode logout request",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.auth.Logout(ctx, principal, authmw.AccessTokenFrom(ctx), req.RefreshToken); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.MessageResult{Message: "logged out"})
}

// HandleMe implements GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := authmw.PrincipalFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeMissingCredential, "authentication required"))
		return
	}

	res, err := h.auth.Me(ctx, principal.ID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to load principal",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandlePasswordReset implements POST /auth/password-reset. It answers the
// same way whether or not the email is known.
func (h *Handler) HandlePasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[models.PasswordResetRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.auth.RequestPasswordReset(ctx, req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, models.MessageResult{
		Message: "if the account exists, reset instructions have been sent",
	})
}
