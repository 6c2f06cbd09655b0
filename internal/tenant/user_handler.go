package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsboard/opsboard/internal/audit"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/platform/database"
	"github.com/opsboard/opsboard/internal/platform/pagination"
)

// UserHandler handles user HTTP endpoints within a company.
type UserHandler struct {
	pool       *pgxpool.Pool
	store      *UserStore
	deptStore  *DepartmentStore
	recorder   *audit.Recorder
	bcryptCost int
}

func NewUserHandler(pool *pgxpool.Pool, store *UserStore, deptStore *DepartmentStore, recorder *audit.Recorder, bcryptCost int) *UserHandler {
	return &UserHandler{
		pool:       pool,
		store:      store,
		deptStore:  deptStore,
		recorder:   recorder,
		bcryptCost: bcryptCost,
	}
}

type userPage struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// visibleUsers drops rows the row gate rejects. The boundary pre-filter
// makes this a no-op for owners and admins.
func visibleUsers(actor *authz.Actor, users []User) []User {
	visible := users[:0]
	for _, u := range users {
		if authz.CheckResourceAccess(actor, u.Resource(), authz.IntentAccess) {
			visible = append(visible, u)
		}
	}
	return visible
}

// HandleMe returns the caller's own user record.
// GET /api/v1/users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	if actor == nil {
		writeError(w, r, authz.ErrUnauthenticated)
		return
	}
	h.serveUser(w, r, actor, actor.ID)
}

// HandleGet returns a user by ID.
// GET /api/v1/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isUUID(id) {
		writeError(w, r, ErrUserNotFound)
		return
	}
	h.serveUser(w, r, auth.GetActor(r.Context()), id)
}

func (h *UserHandler) serveUser(w http.ResponseWriter, r *http.Request, actor *authz.Actor, id string) {
	var user *User
	err := inCompany(r.Context(), h.pool, actor, func(ctx context.Context, q database.Querier) error {
		u, err := h.store.GetByID(ctx, q, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if !authz.CheckResourceAccess(actor, u.Resource(), authz.IntentAccess) {
			return fmt.Errorf("%w: user outside your scope", authz.ErrForbidden)
		}
		user = u
		return h.recorder.Record(ctx, q,
			departmentEvent(actor, audit.ActionUserRead, authz.ResourceUser, u.ID, u.DepartmentID))
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleList returns the users inside the caller's boundary.
// GET /api/v1/users?department_id=&role=&page=&limit=
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, limit, err := pagination.Parse(query)
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

	params := UserListParams{
		CompanyID: actor.CompanyID,
		Boundary:  boundary,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}
	if v := query.Get("department_id"); v != "" {
		if !isUUID(v) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid department_id"})
			return
		}
		params.DepartmentID = &v
	}
	if v := query.Get("role"); v != "" {
		role, roleErr := ValidateRole(v)
		if roleErr != nil {
			writeError(w, r, roleErr)
			return
		}
		params.Role = &role
	}

	var resp userPage
	err = inCompany(r.Context(), h.pool, actor, func(ctx context.Context, q database.Querier) error {
		users, total, listErr := h.store.List(ctx, q, params)
		if listErr != nil {
			return listErr
		}
		resp = userPage{Users: visibleUsers(actor, users), Total: total, Page: page, Limit: limit}

		evt := audit.ActorEvent(actor, audit.ActionUserListed, authz.ResourceUser, audit.ResourceAll).
			WithMetadata("count", len(resp.Users))
		return h.recorder.Record(ctx, q, evt)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type createUserRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         string `json:"role"`
	DepartmentID string `json:"department_id"`
}

func (req *createUserRequest) normalize() error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if err := ValidateEmail(req.Email); err != nil {
		return err
	}
	if len(req.Password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if err := validateName(req.FirstName); err != nil {
		return err
	}
	if err := validateName(req.LastName); err != nil {
		return err
	}
	if req.Role == "" {
		req.Role = authz.Viewer.String()
	}
	role, err := ValidateRole(req.Role)
	if err != nil {
		return err
	}
	req.Role = role
	if req.DepartmentID != "" && !isUUID(req.DepartmentID) {
		return ErrInvalidDepartment
	}
	return nil
}

// HandleCreate adds a user to the caller's company. An empty department
// places the user in the caller's own department.
// POST /api/v1/users
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	actor := auth.GetActor(r.Context())
	if actor == nil {
		writeError(w, r, authz.ErrUnauthenticated)
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := req.normalize(); err != nil {
		writeError(w, r, err)
		return
	}
	if req.DepartmentID == "" {
		req.DepartmentID = actor.DepartmentID
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var created *User
	err = inCompany(r.Context(), h.pool, actor, func(ctx context.Context, q database.Querier) error {
		if _, err := h.deptStore.GetByID(ctx, q, actor.CompanyID, req.DepartmentID); err != nil {
			if errors.Is(err, ErrDepartmentNotFound) {
				return ErrInvalidDepartment
			}
			return err
		}
		target := authz.Resource{Kind: authz.ResourceUser, CompanyID: actor.CompanyID, DepartmentID: req.DepartmentID}
		if !authz.CheckResourceAccess(actor, target, authz.IntentMutate) {
			return fmt.Errorf("%w: department outside your scope", authz.ErrForbidden)
		}

		u, err := h.store.Create(ctx, q, NewUser{
			CompanyID:    actor.CompanyID,
			DepartmentID: req.DepartmentID,
			Email:        req.Email,
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         req.Role,
		})
		if err != nil {
			return err
		}
		created = u

		evt := departmentEvent(actor, audit.ActionUserCreated, authz.ResourceUser, u.ID, u.DepartmentID).
			WithMetadata("email", u.Email).
			WithMetadata("role", u.Role)
		return h.recorder.Record(ctx, q, evt)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

type updateUserRequest struct {
	Email        *string `json:"email"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Role         *string `json:"role"`
	DepartmentID *string `json:"department_id"`
}

func (req *updateUserRequest) normalize() error {
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if err := ValidateEmail(email); err != nil {
			return err
		}
		req.Email = &email
	}
	for _, name := range []*string{req.FirstName, req.LastName} {
		if name == nil {
			continue
		}
		*name = strings.TrimSpace(*name)
		if err := validateName(*name); err != nil {
			return err
		}
	}
	if req.Role != nil {
		role, err := ValidateRole(*req.Role)
		if err != nil {
			return err
		}
		req.Role = &role
	}
	if req.DepartmentID != nil && !isUUID(*req.DepartmentID) {
		return ErrInvalidDepartment
	}
	return nil
}

// HandleUpdate edits a user. Only owners may move a user to another
// department or change a role.
// PATCH /api/v1/users/{id}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	id := r.PathValue("id")
	if !isUUID(id) {
		writeError(w, r, ErrUserNotFound)
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := req.normalize(); err != nil {
		writeError(w, r, err)
		return
	}

	actor := auth.GetActor(r.Context())
	var updated *User
	err := inCompany(r.Context(), h.pool, actor, func(ctx context.Context, q database.Querier) error {
		u, err := h.store.GetByID(ctx, q, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if !authz.CheckResourceAccess(actor, u.Resource(), authz.IntentAccess) {
			return fmt.Errorf("%w: user outside your scope", authz.ErrForbidden)
		}
		if !authz.CheckResourceAccess(actor, u.Resource(), authz.IntentMutate) {
			return fmt.Errorf("%w: you may not modify this user", authz.ErrForbidden)
		}

		changes, err := h.apply(ctx, q, actor, u, req)
		if err != nil {
			return err
		}

		updated, err = h.store.Update(ctx, q, u)
		if err != nil {
			return err
		}
		evt := departmentEvent(actor, audit.ActionUserUpdated, authz.ResourceUser, updated.ID, updated.DepartmentID).
			WithMetadata(audit.MetadataChanges, changes)
		return h.recorder.Record(ctx, q, evt)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// apply copies req onto u and reports what changed.
func (h *UserHandler) apply(ctx context.Context, q database.Querier, actor *authz.Actor, u *User, req updateUserRequest) (map[string]any, error) {
	changes := map[string]any{}
	roleChange := req.Role != nil && *req.Role != u.Role
	deptChange := req.DepartmentID != nil && *req.DepartmentID != u.DepartmentID

	if (roleChange || deptChange) && !authz.IsOwner(actor.Role) {
		return nil, fmt.Errorf("%w: only owners may change role or department", authz.ErrForbidden)
	}
	if roleChange && u.ID == actor.ID {
		return nil, ErrOwnRoleChange
	}

	if req.Email != nil && *req.Email != u.Email {
		changes["email"] = map[string]string{"from": u.Email, "to": *req.Email}
		u.Email = *req.Email
	}
	if req.FirstName != nil && *req.FirstName != u.FirstName {
		u.FirstName = *req.FirstName
		changes["first_name"] = u.FirstName
	}
	if req.LastName != nil && *req.LastName != u.LastName {
		u.LastName = *req.LastName
		changes["last_name"] = u.LastName
	}
	if roleChange {
		changes["role"] = map[string]string{"from": u.Role, "to": *req.Role}
		u.Role = *req.Role
	}
	if deptChange {
		d, err := h.deptStore.GetByID(ctx, q, u.CompanyID, *req.DepartmentID)
		if err != nil {
			if errors.Is(err, ErrDepartmentNotFound) {
				return nil, ErrInvalidDepartment
			}
			return nil, err
		}
		changes["department_id"] = map[string]string{"from": u.DepartmentID, "to": d.ID}
		u.DepartmentID = d.ID
	}
	return changes, nil
}
