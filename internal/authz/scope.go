package authz

import (
	"fmt"
)

// Boundary is the visibility filter a list query must carry. Column is
// always one of a fixed set of identifiers, never caller input.
type Boundary struct {
	Scope  Scope
	Column string
	Value  string
}

// BoundaryFor resolves the widest set of kind rows actor may see. Owners
// see their company and everyone else sees their department. The result
// is a pre-filter; per-row checks still apply after it.
func BoundaryFor(actor *Actor, kind ResourceKind) (Boundary, error) {
	if actor == nil {
		return Boundary{}, ErrUnauthenticated
	}
	if !actor.Valid() {
		return Boundary{}, fmt.Errorf("%w: incomplete identity", ErrForbidden)
	}

	switch kind {
	case ResourceTask, ResourceUser, ResourceAuditLog:
		if actor.Role.Breadth() == ScopeCompany {
			return Boundary{Scope: ScopeCompany, Column: "company_id", Value: actor.CompanyID}, nil
		}
		return Boundary{Scope: ScopeDepartment, Column: "department_id", Value: actor.DepartmentID}, nil
	case ResourceDepartment:
		if actor.Role.Breadth() == ScopeCompany {
			return Boundary{Scope: ScopeCompany, Column: "company_id", Value: actor.CompanyID}, nil
		}
		return Boundary{Scope: ScopeDepartment, Column: "id", Value: actor.DepartmentID}, nil
	case ResourceCompany:
		return Boundary{Scope: ScopeCompany, Column: "id", Value: actor.CompanyID}, nil
	}
	return Boundary{}, fmt.Errorf("%w: no boundary for resource %q", ErrForbidden, kind)
}

// Clause renders the boundary as a parameterized SQL predicate using
// placeholder $argN.
func (b Boundary) Clause(argN int) (string, any) {
	return fmt.Sprintf("%s = $%d", b.Column, argN), b.Value
}

// Contains reports whether a row with the given ownership lies inside the
// boundary.
func (b Boundary) Contains(companyID, departmentID string) bool {
	switch b.Scope {
	case ScopeCompany:
		return companyID == b.Value
	case ScopeDepartment:
		return departmentID == b.Value
	}
	return false
}
