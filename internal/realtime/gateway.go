// Package realtime pushes significant security events to admin dashboards over
// WebSocket. The handshake is authenticated with the same session validation
// as HTTP requests.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"opsdash/internal/audit"
	"opsdash/internal/audit/feed"
	authmw "opsdash/internal/auth/middleware"
	"opsdash/internal/auth/models"
	"opsdash/internal/auth/policy"
	id "opsdash/pkg/domain"
	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/platform/httputil"
	"opsdash/pkg/platform/privacy"
	"opsdash/pkg/requestcontext"
)

// TokenQueryParam carries the access assertion for browsers that cannot set
// headers on the upgrade request.
const TokenQueryParam = "access_token"

const (
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
	maxInboundBytes     = 512
)

// Authenticator resolves an access assertion to an active principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Principal, error)
}

// Subscriber opens a subscription to the admin notification channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (feed.Subscription, error)
}

// Recorder receives UNAUTHORIZED_ACCESS events for non-admin handshakes.
type Recorder interface {
	Record(ctx context.Context, kind audit.Kind, principalID id.PrincipalID, details map[string]any, clientIP string) (string, bool)
}

// Gateway serves GET /ws/notifications.
type Gateway struct {
	auth           Authenticator
	subscriber     Subscriber
	recorder       Recorder
	logger         *slog.Logger
	originPatterns []string
	writeTimeout   time.Duration
	pingInterval   time.Duration
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(g *Gateway) {
		g.recorder = r
	}
}

// WithAllowedOrigins authorizes cross-origin handshakes from these origins.
// Entries may be full origins ("https://ops.example.com") or host patterns.
func WithAllowedOrigins(origins []string) Option {
	return func(g *Gateway) {
		g.originPatterns = originPatterns(origins)
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.writeTimeout = d
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.pingInterval = d
		}
	}
}

// NewGateway creates the notification gateway.
func NewGateway(auth Authenticator, subscriber Subscriber, opts ...Option) (*Gateway, error) {
	if auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if subscriber == nil {
		return nil, errors.New("subscriber is required")
	}
	g := &Gateway{
		auth:         auth,
		subscriber:   subscriber,
		logger:       slog.Default(),
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ServeHTTP authenticates the handshake, then forwards notifications until
// either side goes away. Failures before the upgrade are plain HTTP errors.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := g.authorize(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sub, err := g.subscriber.Subscribe(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "notification subscribe failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "notifications unavailable"))
		return
	}
	defer func() { _ = sub.Close() }()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.originPatterns})
	if err != nil {
		g.logger.InfoContext(ctx, "websocket accept failed",
			"error", err,
			"origin", r.Header.Get("Origin"),
		)
		return
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(maxInboundBytes)

	g.logger.InfoContext(ctx, "notification stream opened",
		"principal_id", principal.ID.String(),
		"client_ip", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
	)

	status, reason := g.forward(conn.CloseRead(ctx), conn, sub)
	_ = conn.Close(status, reason)

	g.logger.InfoContext(ctx, "notification stream closed",
		"principal_id", principal.ID.String(),
		"reason", reason,
	)
}

func (g *Gateway) authorize(r *http.Request) (*models.Principal, error) {
	ctx := r.Context()
	token, ok := authmw.BearerToken(r)
	if !ok {
		token = strings.TrimSpace(r.URL.Query().Get(TokenQueryParam))
	}
	if token == "" {
		return nil, dErrors.New(dErrors.CodeMissingCredential, "missing access token")
	}

	principal, err := g.auth.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if !policy.HasRole(principal, models.RoleAdmin) {
		g.logger.WarnContext(ctx, "forbidden",
			"principal_id", principal.ID.String(),
			"required_role", models.RoleAdmin.String(),
			"actual_role", principal.Role.String(),
			"endpoint", "GET "+r.URL.Path,
		)
		if g.recorder != nil {
			g.recorder.Record(ctx, audit.KindUnauthorizedAccess, principal.ID, map[string]any{
				"requiredRole": models.RoleAdmin.String(),
				"actualRole":   principal.Role.String(),
				"endpoint":     "GET " + r.URL.Path,
			}, requestcontext.ClientIP(ctx))
		}
		return nil, dErrors.New(dErrors.CodeForbidden, "requires role "+models.RoleAdmin.String())
	}
	return principal, nil
}

// forward copies subscription payloads to conn. ctx is done once the peer
// closes or the request ends.
func (g *Gateway) forward(ctx context.Context, conn *websocket.Conn, sub feed.Subscription) (websocket.StatusCode, string) {
	ticker := time.NewTicker(g.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return websocket.StatusNormalClosure, "bye"
		case msg, ok := <-sub.Messages():
			if !ok {
				return websocket.StatusGoingAway, "notification channel closed"
			}
			if err := g.write(ctx, conn, msg); err != nil {
				return websocket.StatusAbnormalClosure, "write failed"
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, g.writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return websocket.StatusGoingAway, "heartbeat failed"
			}
		}
	}
}

func (g *Gateway) write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}

// originPatterns reduces allowed origins to the host[:port] patterns
// websocket.Accept matches against.
func originPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		h := originHost(a)
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

func originHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	return strings.ToLower(s)
}
