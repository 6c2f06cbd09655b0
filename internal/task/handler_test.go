package task_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/opsboard/opsboard/internal/audit"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOps records calls and returns a canned result.
type fakeOps struct {
	err        error
	task       *task.Task
	gotActor   *authz.Actor
	gotCreate  task.CreateInput
	gotUpdate  task.UpdateInput
	gotFilter  task.ListFilter
	gotStatus  task.Status
	gotVersion *int
}

func (f *fakeOps) Create(_ context.Context, actor *authz.Actor, in task.CreateInput) (*task.Task, error) {
	f.gotActor, f.gotCreate = actor, in
	return f.task, f.err
}

func (f *fakeOps) Get(_ context.Context, actor *authz.Actor, _ string) (*task.Task, error) {
	f.gotActor = actor
	return f.task, f.err
}

func (f *fakeOps) List(_ context.Context, actor *authz.Actor, filter task.ListFilter) (*task.Page, error) {
	f.gotActor, f.gotFilter = actor, filter
	if f.err != nil {
		return nil, f.err
	}
	return &task.Page{Tasks: []task.Task{}, Page: filter.Page, Limit: filter.Limit}, nil
}

func (f *fakeOps) Update(_ context.Context, actor *authz.Actor, _ string, in task.UpdateInput) (*task.Task, error) {
	f.gotActor, f.gotUpdate = actor, in
	return f.task, f.err
}

func (f *fakeOps) UpdateStatus(_ context.Context, actor *authz.Actor, _ string, status task.Status, version *int) (*task.Task, error) {
	f.gotActor, f.gotStatus, f.gotVersion = actor, status, version
	return f.task, f.err
}

func (f *fakeOps) Delete(_ context.Context, actor *authz.Actor, _ string) error {
	f.gotActor = actor
	return f.err
}

func newMux(ops task.Operations) *http.ServeMux {
	h := task.NewHandler(ops)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/tasks", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/tasks", h.HandleList)
	mux.HandleFunc("GET /api/v1/tasks/{id}", h.HandleGet)
	mux.HandleFunc("PATCH /api/v1/tasks/{id}", h.HandleUpdate)
	mux.HandleFunc("PATCH /api/v1/tasks/{id}/status", h.HandleUpdateStatus)
	mux.HandleFunc("DELETE /api/v1/tasks/{id}", h.HandleDelete)
	return mux
}

func do(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{
		UserID:       uuid.NewString(),
		CompanyID:    uuid.NewString(),
		DepartmentID: uuid.NewString(),
		Role:         "admin",
		TokenType:    auth.TokenTypeAccess,
	}))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandler_ErrorMapping(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unauthenticated", authz.ErrUnauthenticated, http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("%w: task outside your scope", authz.ErrForbidden), http.StatusForbidden},
		{"not found", task.ErrNotFound, http.StatusNotFound},
		{"invalid assignment", fmt.Errorf("%w: assignee not found", authz.ErrInvalidAssignment), http.StatusUnprocessableEntity},
		{"version conflict", task.ErrVersionConflict, http.StatusConflict},
		{"invalid status", task.ErrInvalidStatus, http.StatusBadRequest},
		{"audit failure", fmt.Errorf("%w: disk full", audit.ErrWriteFailed), http.StatusInternalServerError},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(&fakeOps{err: tt.err})
			w := do(t, mux, http.MethodGet, "/api/v1/tasks/"+id, "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHandler_AuditFailureBody(t *testing.T) {
	mux := newMux(&fakeOps{err: fmt.Errorf("%w: disk full", audit.ErrWriteFailed)})
	w := do(t, mux, http.MethodDelete, "/api/v1/tasks/"+uuid.NewString(), "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "audit write failed")
}

func TestHandler_Create(t *testing.T) {
	ops := &fakeOps{task: &task.Task{ID: uuid.NewString(), Title: "Ship"}}
	mux := newMux(ops)

	assignee := uuid.NewString()
	w := do(t, mux, http.MethodPost, "/api/v1/tasks",
		`{"title":"  Ship  ","priority":"high","assignee_id":"`+assignee+`","due_date":"2026-11-01T00:00:00Z"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Ship", ops.gotCreate.Title)
	assert.Equal(t, task.PriorityHigh, ops.gotCreate.Priority)
	assert.Equal(t, assignee, ops.gotCreate.AssigneeID)
	require.NotNil(t, ops.gotCreate.DueDate)
	require.NotNil(t, ops.gotActor)
	assert.Equal(t, authz.Admin, ops.gotActor.Role)
}

func TestHandler_CreateRejectsMalformedAssignee(t *testing.T) {
	mux := newMux(&fakeOps{})
	w := do(t, mux, http.MethodPost, "/api/v1/tasks", `{"title":"x","assignee_id":"bob"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, mux, http.MethodPost, "/api/v1/tasks", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ListFilters(t *testing.T) {
	ops := &fakeOps{}
	mux := newMux(ops)

	assignee := uuid.NewString()
	w := do(t, mux, http.MethodGet,
		"/api/v1/tasks?status=in_progress&priority=low&category=ops&assignee="+assignee+"&page=2&limit=500", "")
	require.Equal(t, http.StatusOK, w.Code)

	f := ops.gotFilter
	assert.Equal(t, 2, f.Page)
	assert.Equal(t, 200, f.Limit)
	require.NotNil(t, f.Status)
	assert.Equal(t, task.StatusInProgress, *f.Status)
	require.NotNil(t, f.Priority)
	assert.Equal(t, task.PriorityLow, *f.Priority)
	require.NotNil(t, f.Category)
	assert.Equal(t, "ops", *f.Category)
	require.NotNil(t, f.AssigneeID)
	assert.Equal(t, assignee, *f.AssigneeID)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Contains(t, body, "tasks")
	assert.Contains(t, body, "total")
}

func TestHandler_ListDefaultsAndValidation(t *testing.T) {
	ops := &fakeOps{}
	mux := newMux(ops)

	w := do(t, mux, http.MethodGet, "/api/v1/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ops.gotFilter.Page)
	assert.Equal(t, 50, ops.gotFilter.Limit)

	for _, query := range []string{"status=blocked", "priority=urgent", "page=0", "limit=x", "assignee=me"} {
		w := do(t, mux, http.MethodGet, "/api/v1/tasks?"+query, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestHandler_Update(t *testing.T) {
	ops := &fakeOps{task: &task.Task{ID: uuid.NewString()}}
	mux := newMux(ops)

	w := do(t, mux, http.MethodPatch, "/api/v1/tasks/"+uuid.NewString(), `{"title":" New ","version":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, ops.gotUpdate.Title)
	assert.Equal(t, "New", *ops.gotUpdate.Title)
	require.NotNil(t, ops.gotUpdate.Version)
	assert.Equal(t, 3, *ops.gotUpdate.Version)
	assert.Nil(t, ops.gotUpdate.Status)
}

func TestHandler_UpdateStatus(t *testing.T) {
	ops := &fakeOps{task: &task.Task{ID: uuid.NewString()}}
	mux := newMux(ops)

	w := do(t, mux, http.MethodPatch, "/api/v1/tasks/"+uuid.NewString()+"/status", `{"status":"done"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, task.StatusDone, ops.gotStatus)
	assert.Nil(t, ops.gotVersion)
}

func TestHandler_Delete(t *testing.T) {
	mux := newMux(&fakeOps{})
	w := do(t, mux, http.MethodDelete, "/api/v1/tasks/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandler_MalformedIDIsNotFound(t *testing.T) {
	mux := newMux(&fakeOps{})
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w := do(t, mux, method, "/api/v1/tasks/not-a-uuid", "")
		assert.Equal(t, http.StatusNotFound, w.Code, method)
	}
}
