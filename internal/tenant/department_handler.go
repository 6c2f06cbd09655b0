package tenant

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsboard/opsboard/internal/audit"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/platform/database"
	"github.com/opsboard/opsboard/internal/platform/pagination"
)

// DepartmentHandler handles department HTTP endpoints.
type DepartmentHandler struct {
	pool      *pgxpool.Pool
	store     *DepartmentStore
	userStore *UserStore
	recorder  *audit.Recorder
}

func NewDepartmentHandler(pool *pgxpool.Pool, store *DepartmentStore, userStore *UserStore, recorder *audit.Recorder) *DepartmentHandler {
	return &DepartmentHandler{pool: pool, store: store, userStore: userStore, recorder: recorder}
}

// HandleList returns the departments inside the caller's boundary.
// GET /api/v1/departments
func (h *DepartmentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	boundary, err := authz.BoundaryFor(actor, authz.ResourceDepartment)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var departments []Department
	err = inCompany(r.Context(), h.pool, actor, func(ctx context.Context, q database.Querier) error {
		all, listErr := h.store.List(ctx, q, actor.CompanyID, boundary)
		if listErr != nil {
			return listErr
		}
		departments = all[:0]
		for _, d := range all {
			if authz.CheckResourceAccess(actor, d.Resource(), authz.IntentAccess) {
				departments = append(departments, d)
			}
		}
		evt := audit.ActorEvent(actor, audit.ActionDepartmentListed, authz.ResourceDepartment, audit.ResourceAll).
			WithMetadata("count", len(departments))
		return h.recorder.Record(ctx, q, evt)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"departments": departments})
}

// HandleGet returns a department by ID.
// GET /api/v1/departments/{id}
func (h *DepartmentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isUUID(id) {
		writeError(w, r, ErrDepartmentNotFound)
		return
	}

	actor := auth.GetActor(r.Context())
	var dept *Department
	err := inCompany(r.Context(), h.pool, actor, func(ctx context.Context, q database.Querier) error {
		d, err := h.load(ctx, q, actor, id)
		if err != nil {
			return err
		}
		dept = d
		return h.recorder.Record(ctx, q,
			departmentEvent(actor, audit.ActionDepartmentRead, authz.ResourceDepartment, d.ID, d.ID))
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dept)
}

// HandleListUsers returns the members of one department.
// GET /api/v1/departments/{id}/users?page=&limit=
func (h *DepartmentHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isUUID(id) {
		writeError(w, r, ErrDepartmentNotFound)
		return
	}
	page, limit, err := pagination.Parse(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	actor := auth.GetActor(r.Context())
	boundary, err := authz.BoundaryFor(actor, authz.ResourceUser)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var resp userPage
	err = inCompany(r.Context(), h.pool, actor, func(ctx context.Context, q database.Querier) error {
		d, err := h.load(ctx, q, actor, id)
		if err != nil {
			return err
		}
		users, total, err := h.userStore.List(ctx, q, UserListParams{
			CompanyID:    actor.CompanyID,
			Boundary:     boundary,
			DepartmentID: &d.ID,
			Limit:        limit,
			Offset:       (page - 1) * limit,
		})
		if err != nil {
			return err
		}
		resp = userPage{Users: visibleUsers(actor, users), Total: total, Page: page, Limit: limit}

		evt := departmentEvent(actor, audit.ActionUserListed, authz.ResourceUser, audit.ResourceAll, d.ID).
			WithMetadata("department_id", d.ID).
			WithMetadata("count", len(resp.Users))
		return h.recorder.Record(ctx, q, evt)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *DepartmentHandler) load(ctx context.Context, q database.Querier, actor *authz.Actor, id string) (*Department, error) {
	d, err := h.store.GetByID(ctx, q, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if !authz.CheckResourceAccess(actor, d.Resource(), authz.IntentAccess) {
		return nil, fmt.Errorf("%w: department outside your scope", authz.ErrForbidden)
	}
	return d, nil
}
