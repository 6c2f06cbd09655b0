package audit

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/platform/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestAs(target string, identity *auth.Identity) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	return req
}

func identityWithRole(role string) *auth.Identity {
	return &auth.Identity{
		UserID:       uuid.NewString(),
		CompanyID:    uuid.NewString(),
		DepartmentID: uuid.NewString(),
		Role:         role,
		TokenType:    auth.TokenTypeAccess,
	}
}

func TestHandleList_Unauthenticated(t *testing.T) {
	h := NewHandler(nil, NewStore(), NewRecorder(NewStore()))
	w := httptest.NewRecorder()

	h.HandleList(w, requestAs("/api/v1/audit-logs", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleList_ViewerForbidden(t *testing.T) {
	h := NewHandler(nil, NewStore(), NewRecorder(NewStore()))
	w := httptest.NewRecorder()

	h.HandleList(w, requestAs("/api/v1/audit-logs", identityWithRole("viewer")))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleList_InvalidParams(t *testing.T) {
	h := NewHandler(nil, NewStore(), NewRecorder(NewStore()))

	for _, query := range []string{
		"page=0",
		"page=abc",
		"limit=-1",
		"actor_id=not-a-uuid",
		"after=yesterday",
		"before=2026-13-01",
	} {
		t.Run(query, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleList(w, requestAs("/api/v1/audit-logs?"+query, identityWithRole("owner")))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestParseListParams(t *testing.T) {
	actorID := uuid.New()
	query := url.Values{
		"action":        {ActionTaskDeleted},
		"resource_kind": {"task"},
		"actor_id":      {actorID.String()},
		"after":         {"2026-01-01T00:00:00Z"},
		"page":          {"3"},
		"limit":         {"500"},
	}

	p, page, err := parseListParams(query)
	require.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.Equal(t, pagination.MaxLimit, p.Limit)
	assert.Equal(t, 2*pagination.MaxLimit, p.Offset)
	require.NotNil(t, p.Action)
	assert.Equal(t, ActionTaskDeleted, *p.Action)
	require.NotNil(t, p.ActorID)
	assert.Equal(t, actorID, *p.ActorID)
	assert.NotNil(t, p.After)
	assert.Nil(t, p.Before)
}

func TestParseListParams_Defaults(t *testing.T) {
	p, page, err := parseListParams(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 1, page)
	assert.Equal(t, pagination.DefaultLimit, p.Limit)
	assert.Zero(t, p.Offset)
	assert.Nil(t, p.Action)
}
