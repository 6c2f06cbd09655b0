package authz

import (
	"fmt"
	"strings"
)

// Role is one of the three tenant roles. The set is closed: the only
// values are Owner, Admin and Viewer, and role-dependent decisions are
// made through decide so every caller handles all three.
type Role interface {
	fmt.Stringer

	// Breadth is the widest scope the role can see.
	Breadth() Scope

	decide(owner, admin, viewer func() bool) bool
}

type ownerRole struct{}

func (ownerRole) String() string                      { return "owner" }
func (ownerRole) Breadth() Scope                      { return ScopeCompany }
func (ownerRole) decide(owner, _, _ func() bool) bool { return owner() }

type adminRole struct{}

func (adminRole) String() string                      { return "admin" }
func (adminRole) Breadth() Scope                      { return ScopeDepartment }
func (adminRole) decide(_, admin, _ func() bool) bool { return admin() }

type viewerRole struct{}

func (viewerRole) String() string                       { return "viewer" }
func (viewerRole) Breadth() Scope                       { return ScopeDepartment }
func (viewerRole) decide(_, _, viewer func() bool) bool { return viewer() }

var (
	Owner  Role = ownerRole{}
	Admin  Role = adminRole{}
	Viewer Role = viewerRole{}
)

// Roles lists every role, widest first.
func Roles() []Role {
	return []Role{Owner, Admin, Viewer}
}

// ParseRole maps a stored or token role name to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "owner":
		return Owner, nil
	case "admin":
		return Admin, nil
	case "viewer":
		return Viewer, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// IsOwner reports whether r is the owner role.
func IsOwner(r Role) bool {
	if r == nil {
		return false
	}
	return r.decide(always, never, never)
}

// IsViewer reports whether r is the viewer role.
func IsViewer(r Role) bool {
	if r == nil {
		return false
	}
	return r.decide(never, never, always)
}

func always() bool { return true }
func never() bool  { return false }
