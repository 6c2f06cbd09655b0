package authz

import (
	"fmt"
	"strings"
)

// Action is an operation on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ResourceKind names a class of protected resource.
type ResourceKind string

const (
	ResourceTask       ResourceKind = "task"
	ResourceUser       ResourceKind = "user"
	ResourceCompany    ResourceKind = "company"
	ResourceDepartment ResourceKind = "department"
	ResourceAuditLog   ResourceKind = "audit_log"
)

// Scope qualifies how much of a resource kind a permission reaches.
// The zero value means no scope was declared.
type Scope string

const (
	ScopeOwn        Scope = "own"
	ScopeDepartment Scope = "department"
	ScopeCompany    Scope = "company"
)

// Permission is one acceptable way to satisfy an endpoint's requirement.
type Permission struct {
	Action   Action       `json:"action"`
	Resource ResourceKind `json:"resource"`
	Scope    Scope        `json:"scope,omitempty"`
}

// Perm builds a Permission with no declared scope.
func Perm(action Action, resource ResourceKind) Permission {
	return Permission{Action: action, Resource: resource}
}

// Scoped returns a copy of p restricted to scope.
func (p Permission) Scoped(scope Scope) Permission {
	p.Scope = scope
	return p
}

func (p Permission) String() string {
	if p.Scope == "" {
		return fmt.Sprintf("%s:%s", p.Resource, p.Action)
	}
	return fmt.Sprintf("%s:%s:%s", p.Resource, p.Action, p.Scope)
}

// FormatPermissions renders a permission list for logs and error bodies.
func FormatPermissions(perms []Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = p.String()
	}
	return strings.Join(parts, " | ")
}
