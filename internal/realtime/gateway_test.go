package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"opsdash/internal/audit"
	"opsdash/internal/audit/feed"
	"opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
	dErrors "opsdash/pkg/domain-errors"
)

type tokenAuth map[string]*models.Principal

func (a tokenAuth) Authenticate(_ context.Context, token string) (*models.Principal, error) {
	if p, ok := a[token]; ok {
		return p, nil
	}
	return nil, dErrors.New(dErrors.CodeInvalidCredential, "invalid or expired session")
}

type countingRecorder struct {
	mu    sync.Mutex
	kinds []audit.Kind
}

func (r *countingRecorder) Record(_ context.Context, kind audit.Kind, _ id.PrincipalID, _ map[string]any, _ string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	return "evt", true
}

type GatewaySuite struct {
	suite.Suite
	hub      *feed.Hub
	recorder *countingRecorder
	server   *httptest.Server
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.hub = feed.NewHub()
	s.recorder = &countingRecorder{}
	auth := tokenAuth{
		"admin-token":   {ID: id.NewPrincipalID(), Role: models.RoleAdmin, Active: true, Approved: true},
		"manager-token": {ID: id.NewPrincipalID(), Role: models.RoleManager, Active: true, Approved: true},
	}
	gw, err := NewGateway(auth, s.hub,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRecorder(s.recorder),
		WithPingInterval(time.Hour),
	)
	s.Require().NoError(err)
	s.server = httptest.NewServer(gw)
}

func (s *GatewaySuite) TearDownTest() {
	s.server.Close()
}

func (s *GatewaySuite) url(query string) string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/notifications" + query
}

func (s *GatewaySuite) dial(query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return websocket.Dial(ctx, s.url(query), &websocket.DialOptions{HTTPHeader: header})
}

func (s *GatewaySuite) TestAdminReceivesPublishedEvents() {
	conn, _, err := s.dial("", http.Header{"Authorization": {"Bearer admin-token"}})
	s.Require().NoError(err)
	defer conn.CloseNow()

	event := &audit.Event{ID: "01J0", Kind: audit.KindFailedLogin, Timestamp: time.Now().UTC()}
	s.Require().NoError(s.hub.Publish(context.Background(), event))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	s.Require().NoError(err)
	s.Equal(websocket.MessageText, typ)

	var got audit.Event
	s.Require().NoError(json.Unmarshal(data, &got))
	s.Equal(audit.KindFailedLogin, got.Kind)
	s.Equal("01J0", got.ID)
}

func (s *GatewaySuite) TestQueryTokenIsAccepted() {
	conn, _, err := s.dial("?access_token=admin-token", nil)
	s.Require().NoError(err)
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (s *GatewaySuite) TestMissingTokenIs401() {
	_, resp, err := s.dial("", nil)
	s.Require().Error(err)
	s.Require().NotNil(resp)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *GatewaySuite) TestInvalidTokenIs401() {
	_, resp, err := s.dial("?access_token=forged", nil)
	s.Require().Error(err)
	s.Require().NotNil(resp)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *GatewaySuite) TestNonAdminIs403AndRecorded() {
	_, resp, err := s.dial("", http.Header{"Authorization": {"Bearer manager-token"}})
	s.Require().Error(err)
	s.Require().NotNil(resp)
	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.Equal([]audit.Kind{audit.KindUnauthorizedAccess}, s.recorder.kinds)
}

func (s *GatewaySuite) TestCrossOriginRejectedWithoutAllowlist() {
	_, resp, err := s.dial("", http.Header{
		"Authorization": {"Bearer admin-token"},
		"Origin":        {"https://evil.example.com"},
	})
	s.Require().Error(err)
	s.Require().NotNil(resp)
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{
		"https://ops.example.com",
		"http://localhost:3000",
		"OPS.example.com",
		" ",
		"*.internal.example.com",
	})
	assert.Equal(t, []string{"ops.example.com", "localhost:3000", "*.internal.example.com"}, got)
}

func TestNewGatewayRequiresCollaborators(t *testing.T) {
	_, err := NewGateway(nil, feed.NewHub())
	require.Error(t, err)
	_, err = NewGateway(tokenAuth{}, nil)
	require.Error(t, err)
}
