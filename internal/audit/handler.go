package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/platform/database"
	"github.com/opsboard/opsboard/internal/platform/pagination"
)

// Handler serves audit query endpoints.
type Handler struct {
	pool     *pgxpool.Pool
	store    *Store
	recorder *Recorder
}

// NewHandler creates an audit query handler.
func NewHandler(pool *pgxpool.Pool, store *Store, recorder *Recorder) *Handler {
	return &Handler{pool: pool, store: store, recorder: recorder}
}

type listResponse struct {
	Logs  []Entry `json:"logs"`
	Total int     `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}

// HandleList returns audit entries inside the caller's boundary.
// GET /api/v1/audit-logs?action=&resource_kind=&actor_id=&after=&before=&page=&limit=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	boundary, err := authz.BoundaryFor(actor, authz.ResourceAuditLog)
	if err != nil {
		writeAuthzError(w, err)
		return
	}
	if !authz.CheckResourceAccess(actor, authz.Resource{
		Kind:         authz.ResourceAuditLog,
		CompanyID:    actor.CompanyID,
		DepartmentID: actor.DepartmentID,
	}, authz.IntentAccess) {
		writeAuditJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	params, page, err := parseListParams(r.URL.Query())
	if err != nil {
		writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	params.Boundary = boundary

	var resp listResponse
	err = database.WithCompanyTx(r.Context(), h.pool, actor.CompanyID, func(ctx context.Context, q database.Querier) error {
		logs, total, listErr := h.store.List(ctx, q, params)
		if listErr != nil {
			return listErr
		}
		resp = listResponse{Logs: logs, Total: total, Page: page, Limit: params.Limit}
		return h.recorder.Record(ctx, q, ActorEvent(actor, ActionAuditListed, authz.ResourceAuditLog, ResourceAll))
	})
	if err != nil {
		if errors.Is(err, ErrWriteFailed) {
			slog.ErrorContext(r.Context(), "audit write failed", "error", err)
			writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "audit write failed"})
			return
		}
		slog.ErrorContext(r.Context(), "listing audit entries failed", "error", err)
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	writeAuditJSON(w, http.StatusOK, resp)
}

// parseListParams validates the query string. It returns the params with
// Limit and Offset filled in, plus the requested page.
func parseListParams(query url.Values) (ListParams, int, error) {
	var p ListParams

	page, limit, err := pagination.Parse(query)
	if err != nil {
		return p, 0, err
	}
	p.Limit = limit
	p.Offset = pagination.Offset(page, limit)

	if v := query.Get("action"); v != "" {
		p.Action = &v
	}
	if v := query.Get("resource_kind"); v != "" {
		p.ResourceKind = &v
	}
	if v := query.Get("actor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return p, 0, fmt.Errorf("invalid actor_id")
		}
		p.ActorID = &id
	}
	if v := query.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return p, 0, fmt.Errorf("invalid after timestamp")
		}
		p.After = &t
	}
	if v := query.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return p, 0, fmt.Errorf("invalid before timestamp")
		}
		p.Before = &t
	}
	return p, page, nil
}

func writeAuthzError(w http.ResponseWriter, err error) {
	if errors.Is(err, authz.ErrUnauthenticated) {
		writeAuditJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	writeAuditJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
