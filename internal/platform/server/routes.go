package server

import (
	"net/http"

	"github.com/opsboard/opsboard/internal/authz"
)

// Route binds a pattern to a handler and the permissions it requires.
// Require is a disjunction; an empty list marks a public route.
type Route struct {
	Pattern   string
	Require   []authz.Permission
	RateLimit string
	Handler   http.HandlerFunc
}

var (
	createTask = authz.Perm(authz.ActionCreate, authz.ResourceTask)
	readTask   = authz.Perm(authz.ActionRead, authz.ResourceTask)
	updateTask = authz.Perm(authz.ActionUpdate, authz.ResourceTask)
	deleteTask = authz.Perm(authz.ActionDelete, authz.ResourceTask)

	readUser   = authz.Perm(authz.ActionRead, authz.ResourceUser)
	createUser = authz.Perm(authz.ActionCreate, authz.ResourceUser)
	updateUser = authz.Perm(authz.ActionUpdate, authz.ResourceUser)

	readDepartment = authz.Perm(authz.ActionRead, authz.ResourceDepartment)
	readCompany    = authz.Perm(authz.ActionRead, authz.ResourceCompany)
	readAuditLog   = authz.Perm(authz.ActionRead, authz.ResourceAuditLog)
)

func perms(p ...authz.Permission) []authz.Permission { return p }

// Routes returns the API route table for the handlers present in deps.
func Routes(deps Dependencies) []Route {
	var routes []Route

	if h := deps.AuthHandler; h != nil {
		routes = append(routes,
			Route{Pattern: "POST /api/v1/auth/register", RateLimit: "register", Handler: h.HandleRegister},
			Route{Pattern: "POST /api/v1/auth/login", RateLimit: "login", Handler: h.HandleLogin},
			Route{Pattern: "POST /api/v1/auth/refresh", RateLimit: "refresh", Handler: h.HandleRefresh},
			Route{Pattern: "GET /api/v1/auth/profile", Require: perms(readUser.Scoped(authz.ScopeOwn)), Handler: h.HandleProfile},
		)
	}

	if h := deps.TaskHandler; h != nil {
		updateOwn := perms(updateTask, updateTask.Scoped(authz.ScopeOwn))
		routes = append(routes,
			Route{Pattern: "POST /api/v1/tasks", Require: perms(createTask), Handler: h.HandleCreate},
			Route{Pattern: "GET /api/v1/tasks", Require: perms(readTask), Handler: h.HandleList},
			Route{Pattern: "GET /api/v1/tasks/{id}", Require: perms(readTask), Handler: h.HandleGet},
			Route{Pattern: "PATCH /api/v1/tasks/{id}", Require: updateOwn, Handler: h.HandleUpdate},
			Route{Pattern: "PATCH /api/v1/tasks/{id}/status", Require: updateOwn, Handler: h.HandleUpdateStatus},
			Route{Pattern: "DELETE /api/v1/tasks/{id}", Require: perms(deleteTask), Handler: h.HandleDelete},
		)
	}

	if h := deps.EventHandler; h != nil {
		routes = append(routes,
			Route{Pattern: "GET /api/v1/tasks/events", Require: perms(readTask), Handler: h.HandleStream},
		)
	}

	if h := deps.UserHandler; h != nil {
		routes = append(routes,
			Route{Pattern: "GET /api/v1/users/me", Require: perms(readUser.Scoped(authz.ScopeOwn)), Handler: h.HandleMe},
			Route{
				Pattern: "GET /api/v1/users",
				Require: perms(readUser.Scoped(authz.ScopeDepartment), readUser.Scoped(authz.ScopeCompany)),
				Handler: h.HandleList,
			},
			Route{
				Pattern: "GET /api/v1/users/{id}",
				Require: perms(readUser.Scoped(authz.ScopeDepartment), readUser.Scoped(authz.ScopeOwn)),
				Handler: h.HandleGet,
			},
			Route{Pattern: "POST /api/v1/users", Require: perms(createUser), Handler: h.HandleCreate},
			Route{Pattern: "PATCH /api/v1/users/{id}", Require: perms(updateUser), Handler: h.HandleUpdate},
		)
	}

	if h := deps.DepartmentHandler; h != nil {
		routes = append(routes,
			Route{Pattern: "GET /api/v1/departments", Require: perms(readDepartment), Handler: h.HandleList},
			Route{Pattern: "GET /api/v1/departments/{id}", Require: perms(readDepartment), Handler: h.HandleGet},
			Route{
				Pattern: "GET /api/v1/departments/{id}/users",
				Require: perms(readUser.Scoped(authz.ScopeDepartment)),
				Handler: h.HandleListUsers,
			},
		)
	}

	if h := deps.CompanyHandler; h != nil {
		routes = append(routes,
			Route{Pattern: "GET /api/v1/company", Require: perms(readCompany), Handler: h.HandleGet},
		)
	}

	if h := deps.AuditHandler; h != nil {
		routes = append(routes,
			Route{Pattern: "GET /api/v1/audit-logs", Require: perms(readAuditLog), Handler: h.HandleList},
		)
	}

	return routes
}
