package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opsboard/opsboard/internal/audit"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/platform/pagination"
)

// Operations is the task behavior the HTTP layer drives. *Service
// implements it.
type Operations interface {
	Create(ctx context.Context, actor *authz.Actor, in CreateInput) (*Task, error)
	Get(ctx context.Context, actor *authz.Actor, id string) (*Task, error)
	List(ctx context.Context, actor *authz.Actor, f ListFilter) (*Page, error)
	Update(ctx context.Context, actor *authz.Actor, id string, in UpdateInput) (*Task, error)
	UpdateStatus(ctx context.Context, actor *authz.Actor, id string, status Status, version *int) (*Task, error)
	Delete(ctx context.Context, actor *authz.Actor, id string) error
}

// Handler serves the task endpoints.
type Handler struct {
	ops Operations
}

func NewHandler(ops Operations) *Handler {
	return &Handler{ops: ops}
}

type createRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Category    string     `json:"category"`
	AssigneeID  string     `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

type updateRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *Status    `json:"status"`
	Priority    *Priority  `json:"priority"`
	Category    *string    `json:"category"`
	AssigneeID  *string    `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
	Version     *int       `json:"version"`
}

type statusRequest struct {
	Status  Status `json:"status"`
	Version *int   `json:"version"`
}

// HandleCreate handles POST /api/v1/tasks.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.AssigneeID != "" && !isUUID(req.AssigneeID) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid assignment: assignee not found"})
		return
	}

	t, err := h.ops.Create(r.Context(), auth.GetActor(r.Context()), CreateInput{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Category:    strings.TrimSpace(req.Category),
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
	})
	if err != nil {
		writeTaskError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

// HandleList handles GET /api/v1/tasks.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	page, err := h.ops.List(r.Context(), auth.GetActor(r.Context()), f)
	if err != nil {
		writeTaskError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// HandleGet handles GET /api/v1/tasks/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isUUID(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": ErrNotFound.Error()})
		return
	}

	t, err := h.ops.Get(r.Context(), auth.GetActor(r.Context()), id)
	if err != nil {
		writeTaskError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// HandleUpdate handles PATCH /api/v1/tasks/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isUUID(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": ErrNotFound.Error()})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.AssigneeID != nil && !isUUID(*req.AssigneeID) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid assignment: assignee not found"})
		return
	}
	if req.Title != nil {
		trimmed := strings.TrimSpace(*req.Title)
		req.Title = &trimmed
	}

	t, err := h.ops.Update(r.Context(), auth.GetActor(r.Context()), id, UpdateInput(req))
	if err != nil {
		writeTaskError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// HandleUpdateStatus handles PATCH /api/v1/tasks/{id}/status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isUUID(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": ErrNotFound.Error()})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	t, err := h.ops.UpdateStatus(r.Context(), auth.GetActor(r.Context()), id, req.Status, req.Version)
	if err != nil {
		writeTaskError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// HandleDelete handles DELETE /api/v1/tasks/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isUUID(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": ErrNotFound.Error()})
		return
	}

	if err := h.ops.Delete(r.Context(), auth.GetActor(r.Context()), id); err != nil {
		writeTaskError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseListFilter(query url.Values) (ListFilter, error) {
	var f ListFilter

	page, limit, err := pagination.Parse(query)
	if err != nil {
		return f, err
	}
	f.Page, f.Limit = page, limit

	if raw := query.Get("status"); raw != "" {
		s := Status(raw)
		if !s.Valid() {
			return f, ErrInvalidStatus
		}
		f.Status = &s
	}
	if raw := query.Get("priority"); raw != "" {
		p := Priority(raw)
		if !p.Valid() {
			return f, ErrInvalidPriority
		}
		f.Priority = &p
	}
	if raw := query.Get("assignee"); raw != "" {
		if !isUUID(raw) {
			return f, fmt.Errorf("invalid assignee")
		}
		f.AssigneeID = &raw
	}
	if raw := query.Get("category"); raw != "" {
		f.Category = &raw
	}
	return f, nil
}

// writeTaskError maps domain and authorization errors to HTTP responses.
func writeTaskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	case errors.Is(err, authz.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, authz.ErrInvalidAssignment):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrVersionConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidPriority),
		errors.Is(err, ErrTitleRequired), errors.Is(err, ErrTitleTooLong):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, audit.ErrWriteFailed):
		slog.ErrorContext(r.Context(), "audit write failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "audit write failed"})
	default:
		slog.ErrorContext(r.Context(), "task operation failed", "error", err, "path", r.URL.Path)
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
