package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"opsdash/internal/auth/metrics"
	"opsdash/internal/auth/models"
	jwttoken "opsdash/internal/jwt_token"
	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/platform/sentinel"
	"opsdash/pkg/requestcontext"
)

// Validation outcomes reported to metrics.
const (
	outcomeCacheHit = "cache_hit"
	outcomeDegraded = "degraded"
	outcomeRejected = "rejected"
)

// Manager keeps the Session Cache and the Refresh Ledger in step for a
// credential pair. The two writes are independent and not transactional.
type Manager struct {
	signer      Signer
	cache       SessionCache
	ledger      RefreshLedger
	revocations RevocationStore
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

func WithManagerMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithRevocations enables revocation markers. Without it the degraded
// validation path trusts any cryptographically valid assertion.
func WithRevocations(store RevocationStore) ManagerOption {
	return func(m *Manager) { m.revocations = store }
}

func WithTracer(t trace.Tracer) ManagerOption {
	return func(m *Manager) { m.tracer = t }
}

// NewManager wires the session collaborators. All three are required.
func NewManager(signer Signer, cache SessionCache, ledger RefreshLedger, opts ...ManagerOption) (*Manager, error) {
	if signer == nil || cache == nil || ledger == nil {
		return nil, errors.New("signer, session cache, and refresh ledger are required")
	}
	m := &Manager{
		signer: signer,
		cache:  cache,
		ledger: ledger,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer("opsdash/auth/session")
	}
	return m, nil
}

// CreateSession signs an access/refresh pair for principal. The ledger row is
// written first; a failure there fails the call. A cache write failure is
// only logged: the pair is still usable through degraded validation.
func (m *Manager) CreateSession(ctx context.Context, principal *models.Principal, client models.ClientMetadata) (pair *models.TokenPair, err error) {
	ctx, span := m.tracer.Start(ctx, "session.create",
		trace.WithAttributes(attribute.String("principal_id", principal.ID.String())))
	defer func() { endSpan(span, err) }()

	refresh, refreshPayload, err := m.signer.Sign(ctx, principal.ID, principal.Role.String(), m.signer.RefreshTTL(), jwttoken.ClassRefresh)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign refresh assertion")
	}
	now := requestcontext.Now(ctx)
	record, err := models.NewRefreshToken(principal.ID, refresh, client, now, refreshPayload.ExpiresAt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build refresh token")
	}
	if err := m.ledger.Store(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist refresh token")
	}

	access, accessPayload, err := m.issueAccess(ctx, principal)
	if err != nil {
		return nil, err
	}
	m.metrics.IncrementSessionsCreated()

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessPayload.ExpiresAt,
		RefreshExpiresAt: refreshPayload.ExpiresAt,
	}, nil
}

// RefreshSession mints a new access assertion and Session Record from a
// refresh assertion. It checks only the assertion; callers must confirm the
// ledger row is still present and unexpired first.
func (m *Manager) RefreshSession(ctx context.Context, refreshAssertion string, principal *models.Principal) (pair *models.TokenPair, err error) {
	ctx, span := m.tracer.Start(ctx, "session.refresh",
		trace.WithAttributes(attribute.String("principal_id", principal.ID.String())))
	defer func() { endSpan(span, err) }()

	payload, err := m.signer.Verify(ctx, refreshAssertion, jwttoken.ClassRefresh)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidRefreshToken, "invalid refresh token")
	}
	if payload.PrincipalID != principal.ID {
		return nil, dErrors.New(dErrors.CodeInvalidRefreshToken, "invalid refresh token")
	}

	access, accessPayload, err := m.issueAccess(ctx, principal)
	if err != nil {
		return nil, err
	}
	m.metrics.IncrementSessionsRefreshed()

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshAssertion,
		AccessExpiresAt:  accessPayload.ExpiresAt,
		RefreshExpiresAt: payload.ExpiresAt,
	}, nil
}

// issueAccess signs an access assertion and caches its Session Record with a
// TTL equal to the assertion's remaining life.
func (m *Manager) issueAccess(ctx context.Context, principal *models.Principal) (string, *jwttoken.Payload, error) {
	access, payload, err := m.signer.Sign(ctx, principal.ID, principal.Role.String(), m.signer.AccessTTL(), jwttoken.ClassAccess)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign access assertion")
	}

	record := &models.SessionRecord{
		PrincipalID: principal.ID,
		Role:        principal.Role,
		TokenID:     payload.TokenID,
		IssuedAt:    payload.IssuedAt,
		ExpiresAt:   payload.ExpiresAt,
		Profile:     principal.Snapshot(),
	}
	if err := m.cache.Put(ctx, access, record, payload.Remaining(requestcontext.Now(ctx))); err != nil {
		m.metrics.IncrementCacheWriteErrors()
		m.logger.WarnContext(ctx, "session cache write failed, session will validate degraded",
			"error", err,
			"principal_id", principal.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return access, payload, nil
}

// ValidateSession returns the Session Record for a live access assertion, or
// nil. On a cache miss it falls back to the assertion itself and returns a
// degraded record carrying only the principal ID.
func (m *Manager) ValidateSession(ctx context.Context, accessAssertion string) *models.SessionRecord {
	ctx, span := m.tracer.Start(ctx, "session.validate")
	defer span.End()

	if accessAssertion == "" {
		m.metrics.IncrementValidation(outcomeRejected)
		return nil
	}

	record, err := m.cache.Get(ctx, accessAssertion)
	if err == nil {
		m.metrics.IncrementValidation(outcomeCacheHit)
		span.SetAttributes(attribute.String("outcome", outcomeCacheHit))
		return record
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		m.logger.WarnContext(ctx, "session cache read failed, falling back to assertion",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	record = m.degraded(ctx, accessAssertion)
	outcome := outcomeDegraded
	if record == nil {
		outcome = outcomeRejected
	}
	m.metrics.IncrementValidation(outcome)
	span.SetAttributes(attribute.String("outcome", outcome))
	return record
}

func (m *Manager) degraded(ctx context.Context, accessAssertion string) *models.SessionRecord {
	payload, err := m.signer.Verify(ctx, accessAssertion, jwttoken.ClassAccess)
	if err != nil {
		return nil
	}
	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(ctx, payload.TokenID)
		if err != nil {
			// Without the marker store we cannot tell a logged-out assertion apart.
			m.metrics.IncrementRevocationErrors()
			m.logger.ErrorContext(ctx, "revocation lookup failed, rejecting degraded session",
				"error", err,
				"principal_id", payload.PrincipalID.String(),
				"request_id", requestcontext.RequestID(ctx),
			)
			return nil
		}
		if revoked {
			return nil
		}
	}
	return &models.SessionRecord{
		PrincipalID: payload.PrincipalID,
		TokenID:     payload.TokenID,
		IssuedAt:    payload.IssuedAt,
		ExpiresAt:   payload.ExpiresAt,
		Degraded:    true,
	}
}

// InvalidateSession deletes the cache entry for accessAssertion and, when the
// assertion still verifies, records a revocation marker for its remaining
// life. Invalidating an unknown assertion is not an error.
func (m *Manager) InvalidateSession(ctx context.Context, accessAssertion string) (err error) {
	ctx, span := m.tracer.Start(ctx, "session.invalidate")
	defer func() { endSpan(span, err) }()

	var errs []error
	if err := m.cache.Delete(ctx, accessAssertion); err != nil {
		errs = append(errs, fmt.Errorf("delete cached session: %w", err))
	}

	if m.revocations != nil {
		if payload, verr := m.signer.Verify(ctx, accessAssertion, jwttoken.ClassAccess); verr == nil {
			ttl := payload.Remaining(requestcontext.Now(ctx))
			if err := m.revocations.Revoke(ctx, payload.TokenID, ttl); err != nil {
				m.metrics.IncrementRevocationErrors()
				errs = append(errs, fmt.Errorf("write revocation marker: %w", err))
			}
		}
	}

	if len(errs) > 0 {
		return dErrors.Wrap(errors.Join(errs...), dErrors.CodeInternal, "failed to invalidate session")
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
