// Package httptransport composes the public HTTP surface. It only wires
// handlers and middleware; behaviour lives in the domain packages.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opsdash/internal/admin"
	authhandler "opsdash/internal/auth/handler"
	"opsdash/internal/platform/health"
	ratelimitmw "opsdash/internal/ratelimit/middleware"
	"opsdash/internal/ratelimit/models"
	"opsdash/pkg/platform/middleware/metadata"
	request "opsdash/pkg/platform/middleware/request"
)

// NotificationsPath is the realtime endpoint.
const NotificationsPath = "/ws/notifications"

const requestTimeout = 30 * time.Second

// Deps are the handlers and middleware the router mounts. Nil optional
// entries are skipped.
type Deps struct {
	Logger   *slog.Logger
	Metadata *metadata.Middleware
	Metrics  *request.Metrics
	Gatherer prometheus.Gatherer

	Health *health.Handler
	Auth   *authhandler.Handler
	Admin  *admin.Handler
	// Realtime serves the notification socket. It authenticates its own handshake.
	Realtime http.Handler

	RequireAuth  func(http.Handler) http.Handler
	RequireAdmin func(http.Handler) http.Handler
	RateLimits   *ratelimitmw.Middleware
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.Metadata == nil {
		d.Metadata = metadata.NewMiddleware(nil)
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(d.Metadata.Handler)
	r.Use(request.Logger(logger))
	r.Use(request.LatencyMiddleware(d.Metrics, routePattern))

	if d.Health != nil {
		d.Health.Register(r)
	}
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	var loginLimit, resetLimit, apiLimit func(http.Handler) http.Handler
	if d.RateLimits != nil {
		loginLimit = d.RateLimits.RateLimit(models.ClassLogin)
		resetLimit = d.RateLimits.RateLimit(models.ClassPasswordReset)
		apiLimit = d.RateLimits.RateLimit(models.ClassAPI)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		r.Use(request.ContentTypeJSON)

		if d.Auth != nil {
			d.Auth.Register(r, authhandler.Middlewares{
				RequireAuth:  compose(apiLimit, d.RequireAuth),
				LoginLimit:   loginLimit,
				RefreshLimit: apiLimit,
				ResetLimit:   resetLimit,
			})
		}
		if d.Admin != nil {
			d.Admin.Register(r, apiLimit, d.RequireAuth, d.RequireAdmin)
		}
	})

	if d.Realtime != nil {
		// The handshake is limited before the gateway authenticates it.
		r.Method(http.MethodGet, NotificationsPath, compose(apiLimit)(d.Realtime))
	}
	return r
}

// compose applies mws outermost first, skipping nil entries.
func compose(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			if mws[i] != nil {
				next = mws[i](next)
			}
		}
		return next
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return r.Method + " " + p
		}
	}
	return r.Method + " unmatched"
}
