package authz

import "fmt"

// Decision represents the result of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type actionSet map[Action]bool

var allActions = actionSet{ActionCreate: true, ActionRead: true, ActionUpdate: true, ActionDelete: true}

var readOnly = actionSet{ActionRead: true}

// Owners manage the whole company but can never delete users.
var ownerGrants = map[ResourceKind]actionSet{
	ResourceTask:       allActions,
	ResourceUser:       {ActionCreate: true, ActionRead: true, ActionUpdate: true},
	ResourceAuditLog:   readOnly,
	ResourceDepartment: readOnly,
	ResourceCompany:    readOnly,
}

var adminGrants = map[ResourceKind]actionSet{
	ResourceTask:       allActions,
	ResourceUser:       {ActionRead: true, ActionUpdate: true},
	ResourceAuditLog:   readOnly,
	ResourceDepartment: readOnly,
	ResourceCompany:    readOnly,
}

func viewerPermits(p Permission) bool {
	switch p.Resource {
	case ResourceTask:
		switch p.Action {
		case ActionRead, ActionCreate:
			return true
		case ActionUpdate:
			return p.Scope == ScopeOwn
		}
	case ResourceUser:
		return p.Action == ActionRead && p.Scope == ScopeOwn
	}
	return false
}

// Permits reports whether role satisfies a single permission.
func Permits(role Role, p Permission) bool {
	if role == nil {
		return false
	}
	return role.decide(
		func() bool { return ownerGrants[p.Resource][p.Action] },
		func() bool { return adminGrants[p.Resource][p.Action] },
		func() bool { return viewerPermits(p) },
	)
}

// Evaluate checks actor against an endpoint's permission list. The list is
// a disjunction: any satisfied entry grants access. An empty list marks a
// public endpoint and always allows.
func Evaluate(actor *Actor, required []Permission) Decision {
	if len(required) == 0 {
		return Decision{Allowed: true}
	}
	if actor == nil {
		return Decision{Reason: "no authenticated actor"}
	}
	if !actor.Valid() {
		return Decision{Reason: "incomplete identity"}
	}
	for _, p := range required {
		if Permits(actor.Role, p) {
			return Decision{Allowed: true, Reason: "granted by " + p.String()}
		}
	}
	return Decision{
		Reason: fmt.Sprintf("role %s lacks %s", actor.Role, FormatPermissions(required)),
	}
}

// Check is Evaluate expressed as an error: nil when allowed,
// ErrUnauthenticated without an actor, ErrForbidden otherwise.
func Check(actor *Actor, required []Permission) error {
	d := Evaluate(actor, required)
	if d.Allowed {
		return nil
	}
	if actor == nil {
		return ErrUnauthenticated
	}
	return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
}
