package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"opsdash/internal/audit"
	"opsdash/internal/ratelimit/models"
	id "opsdash/pkg/domain"
	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/platform/httputil"
	"opsdash/pkg/platform/privacy"
	"opsdash/pkg/requestcontext"
)

type RateLimiter interface {
	Check(ctx context.Context, class models.Class, identity string) (*models.Result, error)
}

// Recorder receives RATE_LIMIT_EXCEEDED events.
type Recorder interface {
	Record(ctx context.Context, kind audit.Kind, principalID id.PrincipalID, details map[string]any, clientIP string) (string, bool)
}

type Middleware struct {
	limiter  RateLimiter
	recorder Recorder
	logger   *slog.Logger
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(m *Middleware) {
		m.recorder = r
	}
}

func New(limiter RateLimiter, opts ...Option) *Middleware {
	m := &Middleware{limiter: limiter, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RateLimit counts every request through the class window keyed by client IP.
// Denied requests never reach next.
func (m *Middleware) RateLimit(class models.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, err := m.limiter.Check(ctx, class, ip)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"class", class,
					"ip_prefix", privacy.AnonymizeIP(ip),
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				m.recordExceeded(ctx, r, class, ip, result)
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) recordExceeded(ctx context.Context, r *http.Request, class models.Class, ip string, result *models.Result) {
	m.logger.WarnContext(ctx, "rate limit exceeded",
		"class", class,
		"ip_prefix", privacy.AnonymizeIP(ip),
		"retry_after", result.RetryAfter,
		"request_id", requestcontext.RequestID(ctx),
	)
	if m.recorder == nil {
		return
	}
	m.recorder.Record(ctx, audit.KindRateLimitExceeded, id.PrincipalID{}, map[string]any{
		"class":      class.String(),
		"endpoint":   r.Method + " " + r.URL.Path,
		"limit":      result.Limit,
		"retryAfter": result.RetryAfter,
	}, ip)
}

// addRateLimitHeaders adds X-RateLimit-* headers to the response. A fail-open
// result carries no real counts, so it is flagged as degraded instead.
func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil {
		return
	}
	if result.FailedOpen {
		w.Header().Set("X-RateLimit-Status", "degraded")
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, retry in "+strconv.Itoa(result.RetryAfter)+"s"))
}
