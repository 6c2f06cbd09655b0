package authz

// Intent is what the caller wants to do with an already loaded resource.
type Intent int

const (
	IntentAccess Intent = iota
	IntentMutate
	IntentDelete
)

func (i Intent) String() string {
	switch i {
	case IntentAccess:
		return "access"
	case IntentMutate:
		return "mutate"
	case IntentDelete:
		return "delete"
	}
	return "unknown"
}

// action is the permission action an intent needs from the policy.
func (i Intent) action() (Action, bool) {
	switch i {
	case IntentAccess:
		return ActionRead, true
	case IntentMutate:
		return ActionUpdate, true
	case IntentDelete:
		return ActionDelete, true
	}
	return "", false
}

var intentScopes = []Scope{"", ScopeOwn, ScopeDepartment, ScopeCompany}

// policyAllows reports whether the role holds the intent's action on kind
// at some scope. The row checks then narrow that grant to one resource.
func policyAllows(role Role, intent Intent, kind ResourceKind) bool {
	action, ok := intent.action()
	if !ok {
		return false
	}
	p := Perm(action, kind)
	for _, scope := range intentScopes {
		if Permits(role, p.Scoped(scope)) {
			return true
		}
	}
	return false
}

// Resource is the ownership snapshot of any protected row. For a
// department DepartmentID equals ID; for a company both CompanyID and ID
// hold the company id.
type Resource struct {
	Kind         ResourceKind
	ID           string
	CompanyID    string
	DepartmentID string
	AssigneeID   string
	CreatedByID  string
}

// TaskResource adapts a task snapshot to a Resource.
func TaskResource(id string, t TaskRef) Resource {
	return Resource{
		Kind:         ResourceTask,
		ID:           id,
		CompanyID:    t.CompanyID,
		DepartmentID: t.DepartmentID,
		AssigneeID:   t.AssigneeID,
		CreatedByID:  t.CreatedByID,
	}
}

func (r Resource) taskRef() TaskRef {
	return TaskRef{
		CompanyID:    r.CompanyID,
		DepartmentID: r.DepartmentID,
		AssigneeID:   r.AssigneeID,
		CreatedByID:  r.CreatedByID,
	}
}

// CheckResourceAccess is the row-level gate for every resource kind. It
// is never wider than the permission policy. Tasks defer to CanAccess,
// CanMutate and CanDelete.
func CheckResourceAccess(actor *Actor, res Resource, intent Intent) bool {
	if !actor.Valid() || !policyAllows(actor.Role, intent, res.Kind) {
		return false
	}

	switch res.Kind {
	case ResourceTask:
		switch intent {
		case IntentAccess:
			return CanAccess(actor, res.taskRef())
		case IntentMutate:
			return CanMutate(actor, res.taskRef())
		case IntentDelete:
			return CanDelete(actor, res.taskRef())
		}
		return false

	case ResourceUser:
		if intent == IntentDelete {
			return false
		}
		return actor.Role.decide(
			func() bool { return res.CompanyID == actor.CompanyID },
			func() bool { return inDepartment(actor, res.CompanyID, res.DepartmentID) },
			func() bool { return intent == IntentAccess && res.ID == actor.ID },
		)

	case ResourceDepartment:
		return actor.Role.decide(
			func() bool { return res.CompanyID == actor.CompanyID },
			func() bool { return inDepartment(actor, res.CompanyID, res.ID) },
			never,
		)

	case ResourceCompany:
		return res.ID == actor.CompanyID && actor.Role.decide(always, always, never)

	case ResourceAuditLog:
		return actor.Role.decide(
			func() bool { return res.CompanyID == actor.CompanyID },
			func() bool { return inDepartment(actor, res.CompanyID, res.DepartmentID) },
			never,
		)
	}
	return false
}
