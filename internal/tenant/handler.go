package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsboard/opsboard/internal/audit"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/platform/database"
)

// CompanyHandler serves the caller's own company.
type CompanyHandler struct {
	pool     *pgxpool.Pool
	store    *CompanyStore
	recorder *audit.Recorder
}

func NewCompanyHandler(pool *pgxpool.Pool, store *CompanyStore, recorder *audit.Recorder) *CompanyHandler {
	return &CompanyHandler{pool: pool, store: store, recorder: recorder}
}

// HandleGet returns the caller's company.
// GET /api/v1/company
func (h *CompanyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())

	var company *Company
	err := inCompany(r.Context(), h.pool, actor, func(ctx context.Context, q database.Querier) error {
		c, err := h.store.GetByID(ctx, q, actor.CompanyID)
		if err != nil {
			return err
		}
		if !authz.CheckResourceAccess(actor, authz.Resource{Kind: authz.ResourceCompany, ID: c.ID, CompanyID: c.ID}, authz.IntentAccess) {
			return fmt.Errorf("%w: company outside your scope", authz.ErrForbidden)
		}
		company = c
		return h.recorder.Record(ctx, q, audit.ActorEvent(actor, audit.ActionCompanyRead, authz.ResourceCompany, c.ID))
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, company)
}

// inCompany runs fn in a transaction scoped to actor's company.
func inCompany(ctx context.Context, pool *pgxpool.Pool, actor *authz.Actor, fn func(ctx context.Context, q database.Querier) error) error {
	if actor == nil {
		return authz.ErrUnauthenticated
	}
	if !actor.Valid() {
		return fmt.Errorf("%w: incomplete identity", authz.ErrForbidden)
	}
	return database.WithCompanyTx(ctx, pool, actor.CompanyID, fn)
}

// departmentEvent files an audit entry under departmentID so readers
// scoped to that department see it.
func departmentEvent(actor *authz.Actor, action string, kind authz.ResourceKind, resourceID, departmentID string) audit.Event {
	e := audit.ActorEvent(actor, action, kind, resourceID)
	if did, err := uuid.Parse(departmentID); err == nil {
		e.DepartmentID = &did
	}
	return e
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	case errors.Is(err, authz.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
	case errors.Is(err, ErrDepartmentNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "department not found"})
	case errors.Is(err, ErrCompanyNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "company not found"})
	case errors.Is(err, ErrEmailTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": ErrEmailTaken.Error()})
	case errors.Is(err, ErrInvalidDepartment), errors.Is(err, ErrOwnRoleChange):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrEmailInvalid),
		errors.Is(err, ErrPasswordTooShort),
		errors.Is(err, ErrRoleInvalid),
		errors.Is(err, ErrNameTooLong):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, audit.ErrWriteFailed):
		slog.ErrorContext(r.Context(), "audit write failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "audit write failed"})
	default:
		slog.ErrorContext(r.Context(), "directory request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
