package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"opsdash/internal/admin"
	"opsdash/internal/audit"
	"opsdash/internal/audit/feed"
	auditstore "opsdash/internal/audit/store"
	authhandler "opsdash/internal/auth/handler"
	authmw "opsdash/internal/auth/middleware"
	"opsdash/internal/auth/models"
	"opsdash/internal/auth/policy"
	authservice "opsdash/internal/auth/service"
	refreshtoken "opsdash/internal/auth/store/refresh-token"
	"opsdash/internal/auth/store/revocation"
	"opsdash/internal/auth/store/session"
	"opsdash/internal/auth/store/user"
	jwttoken "opsdash/internal/jwt_token"
	"opsdash/internal/platform/health"
	ratelimitmw "opsdash/internal/ratelimit/middleware"
	ratelimit "opsdash/internal/ratelimit/service"
	"opsdash/internal/ratelimit/store/counter"
	"opsdash/internal/realtime"
	request "opsdash/pkg/platform/middleware/request"
	"opsdash/pkg/testutil"
)

type RouterSuite struct {
	suite.Suite
	router   http.Handler
	audit    *auditstore.InMemoryStore
	recorder *audit.Recorder
	admin    *models.Principal
	manager  *models.Principal
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	t := s.T()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	reg := prometheus.NewRegistry()

	users := user.NewInMemory()
	s.admin = testutil.NewPrincipal(t, "admin@example.com", models.RoleAdmin)
	s.manager = testutil.NewPrincipal(t, "manager@example.com", models.RoleManager)
	s.Require().NoError(users.Save(ctx, s.admin))
	s.Require().NoError(users.Save(ctx, s.manager))

	s.audit = auditstore.NewInMemory()
	ring := feed.NewInMemoryRing(feed.DefaultCapacity)
	s.recorder = audit.NewRecorder(s.audit, audit.WithFeed(ring), audit.WithLogger(logger))

	signer, err := jwttoken.NewSigner("router-access-secret", "router-refresh-secret")
	s.Require().NoError(err)
	ledger := refreshtoken.NewInMemory()
	sessions, err := authservice.NewManager(signer, session.New(), ledger,
		authservice.WithRevocations(revocation.NewInMemory()),
		authservice.WithManagerLogger(logger),
	)
	s.Require().NoError(err)
	authSvc, err := authservice.New(users, sessions, ledger,
		authservice.WithLogger(logger),
		authservice.WithRecorder(s.recorder),
	)
	s.Require().NoError(err)

	limiter, err := ratelimit.New(counter.NewInMemory(), ratelimit.WithLogger(logger))
	s.Require().NoError(err)

	adminSvc, err := admin.NewService(ring, s.audit)
	s.Require().NoError(err)

	authenticator := authmw.NewAuthenticator(sessions, users, logger)
	enforcer := policy.New(s.recorder, logger)
	gateway, err := realtime.NewGateway(authenticator, feed.NewHub(), realtime.WithLogger(logger))
	s.Require().NoError(err)

	s.router = NewRouter(Deps{
		Logger:       logger,
		Metrics:      request.NewMetrics(reg),
		Gatherer:     reg,
		Health:       health.New("test"),
		Auth:         authhandler.New(authSvc, logger),
		Admin:        admin.New(adminSvc, logger),
		Realtime:     gateway,
		RequireAuth:  authenticator.RequireAuth,
		RequireAdmin: enforcer.RequireRole(models.RoleAdmin),
		RateLimits:   ratelimitmw.New(limiter, ratelimitmw.WithLogger(logger), ratelimitmw.WithRecorder(s.recorder)),
	})
}

func (s *RouterSuite) TearDownTest() {
	s.recorder.Close()
}

func (s *RouterSuite) do(method, path, body, token, remoteAddr string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *RouterSuite) login(email, password, remoteAddr string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`, "", remoteAddr)
}

func (s *RouterSuite) count(kind audit.Kind) int {
	events, err := s.audit.ListRecent(context.Background(), 200, kind)
	s.Require().NoError(err)
	return len(events)
}

func (s *RouterSuite) TestLoginThenMe() {
	rr := s.login("admin@example.com", testutil.TestPassword, "")
	s.Require().Equal(http.StatusOK, rr.Code)

	var tokens models.TokenResult
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &tokens))
	s.NotEmpty(tokens.AccessToken)
	s.NotEmpty(rr.Header().Get("X-Request-ID"))
	s.Equal("4", rr.Header().Get("X-RateLimit-Remaining"))

	me := s.do(http.MethodGet, "/auth/me", "", tokens.AccessToken, "")
	s.Require().Equal(http.StatusOK, me.Code)
	s.Contains(me.Body.String(), "admin@example.com")
	s.NotContains(me.Body.String(), "PasswordHash")

	s.Equal(1, s.count(audit.KindLogin))
}

func (s *RouterSuite) TestSixthLoginIsLimitedBeforeCredentialCheck() {
	const addr = "198.51.100.20:5555"
	for i := range 5 {
		rr := s.login("manager@example.com", "wrong-password", addr)
		s.Equal(http.StatusUnauthorized, rr.Code, "attempt %d", i+1)
	}

	rr := s.login("manager@example.com", testutil.TestPassword, addr)
	s.Equal(http.StatusTooManyRequests, rr.Code)
	s.NotEmpty(rr.Header().Get("Retry-After"))

	s.Equal(5, s.count(audit.KindFailedLogin))
	s.Equal(0, s.count(audit.KindLogin), "the limited attempt must not reach credential verification")
	s.Equal(1, s.count(audit.KindRateLimitExceeded))

	other := s.login("manager@example.com", testutil.TestPassword, "203.0.113.50:4444")
	s.Equal(http.StatusOK, other.Code, "limits are per client IP")
}

func (s *RouterSuite) TestAdminRoutesAreRoleGated() {
	var tokens models.TokenResult

	rr := s.login("manager@example.com", testutil.TestPassword, "")
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &tokens))

	forbidden := s.do(http.MethodGet, "/admin/security/events", "", tokens.AccessToken, "")
	s.Equal(http.StatusForbidden, forbidden.Code)
	s.Equal(1, s.count(audit.KindUnauthorizedAccess))

	unauthenticated := s.do(http.MethodGet, "/admin/audit", "", "", "")
	s.Equal(http.StatusUnauthorized, unauthenticated.Code)

	rr = s.login("admin@example.com", testutil.TestPassword, "")
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &tokens))

	ok := s.do(http.MethodGet, "/admin/audit?kind=LOGIN", "", tokens.AccessToken, "")
	s.Require().Equal(http.StatusOK, ok.Code)
	var page admin.EventsResponse
	s.Require().NoError(json.Unmarshal(ok.Body.Bytes(), &page))
	s.Equal(2, page.Total)
}

func (s *RouterSuite) TestLogoutInvalidatesSession() {
	rr := s.login("admin@example.com", testutil.TestPassword, "")
	s.Require().Equal(http.StatusOK, rr.Code)
	var tokens models.TokenResult
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &tokens))

	out := s.do(http.MethodPost, "/auth/logout", `{"refreshToken":"`+tokens.RefreshToken+`"}`, tokens.AccessToken, "")
	s.Require().Equal(http.StatusOK, out.Code)

	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/auth/me", "", tokens.AccessToken, "").Code)
	refresh := s.do(http.MethodPost, "/auth/refresh", `{"refreshToken":"`+tokens.RefreshToken+`"}`, "", "")
	s.Equal(http.StatusUnauthorized, refresh.Code)
}

func (s *RouterSuite) TestRefreshIsLimitedByAPIClass() {
	const addr = "198.51.100.30:6000"
	body := `{"refreshToken":"guessed.refresh.token"}`
	for i := range 60 {
		rr := s.do(http.MethodPost, "/auth/refresh", body, "", addr)
		s.Require().NotEqual(http.StatusTooManyRequests, rr.Code, "attempt %d", i+1)
	}

	rr := s.do(http.MethodPost, "/auth/refresh", body, "", addr)
	s.Equal(http.StatusTooManyRequests, rr.Code)
	s.NotEmpty(rr.Header().Get("Retry-After"))
	s.Equal(1, s.count(audit.KindRateLimitExceeded))
}

func (s *RouterSuite) TestNotificationHandshakeIsLimited() {
	const addr = "198.51.100.31:6001"
	for i := range 60 {
		rr := s.do(http.MethodGet, NotificationsPath, "", "", addr)
		s.Require().Equal(http.StatusUnauthorized, rr.Code, "attempt %d", i+1)
	}

	rr := s.do(http.MethodGet, NotificationsPath, "", "", addr)
	s.Equal(http.StatusTooManyRequests, rr.Code)
}

func (s *RouterSuite) TestHealthAndMetrics() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health/live", "", "", "").Code)

	metrics := s.do(http.MethodGet, "/metrics", "", "", "")
	s.Equal(http.StatusOK, metrics.Code)
	s.Contains(metrics.Body.String(), "opsdash_endpoint_latency_seconds")
}

func (s *RouterSuite) TestNonJSONBodyRejected() {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("email=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	s.Equal(http.StatusUnsupportedMediaType, rr.Code)
}

func TestComposeOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := compose(mark("outer"), nil, mark("inner"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
