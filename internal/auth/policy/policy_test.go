package policy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdash/internal/audit"
	authmw "opsdash/internal/auth/middleware"
	"opsdash/internal/auth/models"
	id "opsdash/pkg/domain"
	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/requestcontext"
)

type recordedEvent struct {
	kind        audit.Kind
	principalID id.PrincipalID
	details     map[string]any
	clientIP    string
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
	ok     bool
}

func (f *fakeRecorder) Record(_ context.Context, kind audit.Kind, principalID id.PrincipalID, details map[string]any, clientIP string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{kind, principalID, details, clientIP})
	if !f.ok {
		return "", false
	}
	return "evt", true
}

func principal(role models.Role) *models.Principal {
	return &models.Principal{ID: id.NewPrincipalID(), Role: role, Active: true, Approved: true}
}

func serve(h func(http.Handler) http.Handler, p *models.Principal, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	ctx := requestcontext.WithClientMetadata(req.Context(), "198.51.100.4", "test")
	if p != nil {
		ctx = authmw.WithPrincipal(ctx, p)
	}
	rec := httptest.NewRecorder()
	h(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestPredicates(t *testing.T) {
	admin, manager, user := principal(models.RoleAdmin), principal(models.RoleManager), principal(models.RoleUser)

	assert.True(t, HasRole(admin, models.RoleAdmin))
	assert.False(t, HasRole(manager, models.RoleAdmin))
	assert.False(t, HasRole(nil, models.RoleAdmin))

	assert.True(t, HasAnyRole(manager, models.RoleAdmin, models.RoleManager))
	assert.False(t, HasAnyRole(user, models.RoleAdmin, models.RoleManager))

	assert.True(t, Owns(user, user.ID))
	assert.False(t, Owns(user, manager.ID))
	assert.True(t, Owns(admin, user.ID), "admin overrides ownership")
	assert.False(t, Owns(nil, user.ID))
}

func TestRequireRole(t *testing.T) {
	rec := &fakeRecorder{ok: true}
	e := New(rec, nil)

	assert.Equal(t, http.StatusNoContent, serve(e.RequireRole(models.RoleAdmin), principal(models.RoleAdmin), "/admin/audit").Code)
	require.Empty(t, rec.events)

	manager := principal(models.RoleManager)
	res := serve(e.RequireRole(models.RoleAdmin), manager, "/admin/audit")
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), string(dErrors.CodeForbidden))

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, audit.KindUnauthorizedAccess, ev.kind)
	assert.Equal(t, manager.ID, ev.principalID)
	assert.Equal(t, "admin", ev.details["requiredRole"])
	assert.Equal(t, "manager", ev.details["actualRole"])
	assert.Equal(t, "GET /admin/audit", ev.details["endpoint"])
	assert.Equal(t, "198.51.100.4", ev.clientIP)
}

func TestRequireAnyRole(t *testing.T) {
	rec := &fakeRecorder{ok: true}
	e := New(rec, nil)
	mw := e.RequireAnyRole(models.RoleAdmin, models.RoleManager)

	assert.Equal(t, http.StatusNoContent, serve(mw, principal(models.RoleManager), "/reports").Code)
	assert.Equal(t, http.StatusForbidden, serve(mw, principal(models.RoleUser), "/reports").Code)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "admin|manager", rec.events[0].details["requiredRole"])
}

func TestRequireOwnership(t *testing.T) {
	rec := &fakeRecorder{ok: true}
	e := New(rec, nil)
	owner := principal(models.RoleUser)
	mw := e.RequireOwnership(func(*http.Request) (id.PrincipalID, error) { return owner.ID, nil })

	assert.Equal(t, http.StatusNoContent, serve(mw, owner, "/users/x").Code)
	assert.Equal(t, http.StatusNoContent, serve(mw, principal(models.RoleAdmin), "/users/x").Code)
	assert.Equal(t, http.StatusForbidden, serve(mw, principal(models.RoleUser), "/users/x").Code)
	assert.Len(t, rec.events, 1)
}

func TestRequireOwnershipLookupError(t *testing.T) {
	e := New(&fakeRecorder{ok: true}, nil)
	mw := e.RequireOwnership(func(*http.Request) (id.PrincipalID, error) {
		return id.PrincipalID{}, dErrors.New(dErrors.CodeNotFound, "user not found")
	})
	assert.Equal(t, http.StatusNotFound, serve(mw, principal(models.RoleUser), "/users/x").Code)
}

func TestDenialSurvivesRecorderFailure(t *testing.T) {
	rec := &fakeRecorder{ok: false}
	e := New(rec, nil)

	res := serve(e.RequireRole(models.RoleAdmin), principal(models.RoleUser), "/admin/audit")
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Len(t, rec.events, 1)
}

func TestNoPrincipalIsUnauthenticated(t *testing.T) {
	e := New(nil, nil)
	assert.Equal(t, http.StatusUnauthorized, serve(e.RequireRole(models.RoleAdmin), nil, "/admin/audit").Code)
}
