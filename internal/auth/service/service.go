package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"opsdash/internal/audit"
	"opsdash/internal/auth/metrics"
	"opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/platform/sentinel"
	"opsdash/pkg/requestcontext"
)

const tokenTypeBearer = "Bearer"

// Service implements the login, refresh, logout and password reset flows on
// top of a SessionManager.
type Service struct {
	principals PrincipalStore
	sessions   SessionManager
	ledger     RefreshLedger
	recorder   Recorder
	mailer     Mailer
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithMailer sets the collaborator that delivers password reset instructions.
// Without one, reset requests are only recorded.
func WithMailer(m Mailer) Option {
	return func(s *Service) {
		s.mailer = m
	}
}

func New(principals PrincipalStore, sessions SessionManager, ledger RefreshLedger, opts ...Option) (*Service, error) {
	if principals == nil || sessions == nil || ledger == nil {
		return nil, errors.New("principal store, session manager, and refresh ledger are required")
	}
	svc := &Service{
		principals: principals,
		sessions:   sessions,
		ledger:     ledger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc, nil
}

// dummyHash is compared against when the email is unknown so that response
// time does not reveal which accounts exist.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("opsdash-timing-equalizer"), bcrypt.DefaultCost)
	return h
})

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.TokenResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveLoginDuration(float64(time.Since(start).Milliseconds())) }()

	principal, err := s.principals.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up principal")
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(req.Password))
		s.failedLogin(ctx, id.PrincipalID{}, req.Email, "unknown_principal")
		return nil, dErrors.New(dErrors.CodeInvalidCredential, "invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(req.Password)); err != nil {
		s.failedLogin(ctx, principal.ID, req.Email, "bad_password")
		return nil, dErrors.New(dErrors.CodeInvalidCredential, "invalid email or password")
	}
	if !principal.CanAuthenticate() {
		s.failedLogin(ctx, principal.ID, req.Email, "principal_inactive")
		return nil, dErrors.New(dErrors.CodePrincipalInactive, "account is not active")
	}

	pair, err := s.sessions.CreateSession(ctx, principal, clientMetadata(ctx))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create session",
			"error", err,
			"principal_id", principal.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}
	s.record(ctx, audit.KindLogin, principal.ID, map[string]any{"email": principal.Email})

	return &models.TokenResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    expiresIn(ctx, pair.AccessExpiresAt),
		TokenType:    tokenTypeBearer,
	}, nil
}

// Refresh mints a new access assertion. The ledger row must exist and be
// unexpired, and its principal must still be allowed to authenticate.
func (s *Service) Refresh(ctx context.Context, req *models.RefreshRequest) (*models.AccessTokenResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRefreshDuration(float64(time.Since(start).Milliseconds())) }()

	row, err := s.ledger.FindValid(ctx, req.RefreshToken, requestcontext.Now(ctx))
	if err != nil {
		err = translate(err, refreshErrorMappings, "failed to look up refresh token")
		s.authFailure(ctx, "refresh_not_found", err)
		return nil, err
	}

	principal, err := s.principals.FindByID(ctx, row.PrincipalID)
	if err != nil {
		err = translate(err, principalErrorMappings, "failed to look up principal")
		s.authFailure(ctx, "refresh_principal_lookup", err)
		return nil, err
	}
	if !principal.CanAuthenticate() {
		s.authFailure(ctx, "refresh_principal_inactive", nil)
		return nil, dErrors.New(dErrors.CodePrincipalInactive, "account is not active")
	}

	pair, err := s.sessions.RefreshSession(ctx, req.RefreshToken, principal)
	if err != nil {
		s.authFailure(ctx, "refresh_rejected", err)
		return nil, err
	}
	s.record(ctx, audit.KindTokenRefreshed, principal.ID, nil)

	return &models.AccessTokenResult{
		AccessToken: pair.AccessToken,
		ExpiresIn:   expiresIn(ctx, pair.AccessExpiresAt),
		TokenType:   tokenTypeBearer,
	}, nil
}

// Logout invalidates the access assertion and, when given, revokes the
// caller's refresh token. A refresh token owned by someone else is ignored.
func (s *Service) Logout(ctx context.Context, principal *models.Principal, accessToken, refreshToken string) error {
	var errs []error
	if err := s.sessions.InvalidateSession(ctx, accessToken); err != nil {
		errs = append(errs, err)
	}

	if refreshToken != "" {
		if err := s.revokeOwned(ctx, principal, refreshToken); err != nil {
			errs = append(errs, err)
		}
	}
	s.record(ctx, audit.KindLogout, principal.ID, nil)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		s.logger.ErrorContext(ctx, "logout incomplete",
			"error", err,
			"principal_id", principal.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "logout incomplete")
	}
	return nil
}

func (s *Service) revokeOwned(ctx context.Context, principal *models.Principal, refreshToken string) error {
	row, err := s.ledger.FindValid(ctx, refreshToken, requestcontext.Now(ctx))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if row.PrincipalID != principal.ID {
		s.logger.WarnContext(ctx, "logout presented a refresh token owned by another principal",
			"principal_id", principal.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil
	}
	return s.ledger.Revoke(ctx, refreshToken)
}

// Me reloads the principal behind an authenticated request.
func (s *Service) Me(ctx context.Context, principalID id.PrincipalID) (*models.PrincipalResult, error) {
	principal, err := s.principals.FindByID(ctx, principalID)
	if err != nil {
		return nil, translate(err, principalErrorMappings, "failed to look up principal")
	}
	if !principal.CanAuthenticate() {
		return nil, dErrors.New(dErrors.CodePrincipalInactive, "account is not active")
	}
	res := models.NewPrincipalResult(principal)
	return &res, nil
}

// RequestPasswordReset records the request and hands active principals to
// the mailer. It reports success for unknown emails too.
func (s *Service) RequestPasswordReset(ctx context.Context, req *models.PasswordResetRequest) error {
	principal, err := s.principals.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up principal")
	}

	var principalID id.PrincipalID
	if principal != nil {
		principalID = principal.ID
	}
	s.record(ctx, audit.KindPasswordResetRequested, principalID, map[string]any{"email": req.Email})

	if principal == nil || !principal.CanAuthenticate() || s.mailer == nil {
		return nil
	}
	if err := s.mailer.SendPasswordReset(ctx, principal.Email); err != nil {
		s.logger.ErrorContext(ctx, "failed to send password reset",
			"error", err,
			"principal_id", principal.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return nil
}

func clientMetadata(ctx context.Context) models.ClientMetadata {
	ua := requestcontext.UserAgent(ctx)
	return models.ClientMetadata{
		IP:        requestcontext.ClientIP(ctx),
		UserAgent: ua,
		Device:    deviceLabel(ua),
	}
}

func expiresIn(ctx context.Context, expiresAt time.Time) int {
	return int(expiresAt.Sub(requestcontext.Now(ctx)).Round(time.Second).Seconds())
}
