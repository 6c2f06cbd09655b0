package rbac_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/opsboard/opsboard/internal/audit"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) Close() error { return nil }

type decision struct {
	role, resource, action string
	allowed                bool
}

type recordingObserver struct{ decisions []decision }

func (o *recordingObserver) ObserveDecision(role, resource, action string, allowed bool) {
	o.decisions = append(o.decisions, decision{role, resource, action, allowed})
}

func setIdentity(r *http.Request, role string) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{
		UserID:       uuid.NewString(),
		CompanyID:    uuid.NewString(),
		DepartmentID: uuid.NewString(),
		Role:         role,
		TokenType:    auth.TokenTypeAccess,
	}))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

var (
	readTask   = []authz.Permission{authz.Perm(authz.ActionRead, authz.ResourceTask)}
	deleteTask = []authz.Permission{authz.Perm(authz.ActionDelete, authz.ResourceTask)}
	updateTask = []authz.Permission{
		authz.Perm(authz.ActionUpdate, authz.ResourceTask),
		authz.Perm(authz.ActionUpdate, authz.ResourceTask).Scoped(authz.ScopeOwn),
	}
)

func TestRequire_Allowed(t *testing.T) {
	obs := &recordingObserver{}
	handler := rbac.Require(readTask, rbac.WithDecisionObserver(obs))(okHandler())

	req := setIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil), "viewer")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, obs.decisions, 1)
	assert.Equal(t, decision{"viewer", "task", "read", true}, obs.decisions[0])
}

func TestRequire_AnyEntrySuffices(t *testing.T) {
	handler := rbac.Require(updateTask)(okHandler())

	req := setIdentity(httptest.NewRequest(http.MethodPatch, "/api/v1/tasks/1", nil), "viewer")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequire_DeniedIsAudited(t *testing.T) {
	auditLog := &recordingAudit{}
	obs := &recordingObserver{}
	handler := rbac.Require(deleteTask,
		rbac.WithAuditLogger(auditLog),
		rbac.WithDecisionObserver(obs),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := setIdentity(httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/1", nil), "viewer")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body["error"])
	assert.Contains(t, body["reason"], "viewer")

	require.Len(t, auditLog.events, 1)
	evt := auditLog.events[0]
	assert.Equal(t, audit.ActionAccessDenied, evt.Action)
	assert.Equal(t, "task", evt.ResourceKind)
	assert.Equal(t, "task:delete", evt.Metadata[audit.MetadataPermissions])
	assert.NotNil(t, evt.ActorID)

	require.Len(t, obs.decisions, 1)
	assert.False(t, obs.decisions[0].allowed)
}

func TestRequire_NoIdentityIs401(t *testing.T) {
	auditLog := &recordingAudit{}
	handler := rbac.Require(deleteTask, rbac.WithAuditLogger(auditLog))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/1", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, auditLog.events)
}

func TestRequire_UnknownRoleIsNotAnActor(t *testing.T) {
	handler := rbac.Require(readTask)(okHandler())

	req := setIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil), "superuser")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequire_IncompleteIdentityIs403(t *testing.T) {
	handler := rbac.Require(readTask)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{
		UserID:    uuid.NewString(),
		CompanyID: uuid.NewString(),
		Role:      "admin",
		TokenType: auth.TokenTypeAccess,
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "incomplete identity", body["reason"])
}

func TestRequire_PublicRoute(t *testing.T) {
	handler := rbac.Require(nil)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
