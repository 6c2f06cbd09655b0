package authz

import "fmt"

// TaskRef is the ownership snapshot of a task the gate needs. Storage
// loads it; the gate never reads or writes storage itself.
type TaskRef struct {
	CompanyID    string
	DepartmentID string
	AssigneeID   string
	CreatedByID  string
}

// Member is the ownership snapshot of a user referenced as an assignee.
type Member struct {
	ID           string
	CompanyID    string
	DepartmentID string
}

// CanAccess gates reading a single task. Viewers read their whole
// department, not only their own tasks.
func CanAccess(actor *Actor, task TaskRef) bool {
	if !actor.Valid() {
		return false
	}
	return actor.Role.decide(
		func() bool { return task.CompanyID == actor.CompanyID },
		func() bool { return inDepartment(actor, task.CompanyID, task.DepartmentID) },
		func() bool { return inDepartment(actor, task.CompanyID, task.DepartmentID) },
	)
}

// CanMutate gates updating a single task. A viewer may change only tasks
// they are assigned to or created.
func CanMutate(actor *Actor, task TaskRef) bool {
	if !actor.Valid() {
		return false
	}
	return actor.Role.decide(
		func() bool { return task.CompanyID == actor.CompanyID },
		func() bool { return inDepartment(actor, task.CompanyID, task.DepartmentID) },
		func() bool {
			if task.CompanyID != actor.CompanyID {
				return false
			}
			return task.AssigneeID == actor.ID || task.CreatedByID == actor.ID
		},
	)
}

// CanDelete is CanMutate with viewers excluded unconditionally.
func CanDelete(actor *Actor, task TaskRef) bool {
	if !actor.Valid() {
		return false
	}
	return actor.Role.decide(
		func() bool { return CanMutate(actor, task) },
		func() bool { return CanMutate(actor, task) },
		never,
	)
}

// CheckAssignment validates the assignee of a new or reassigned task. A
// nil assignee means the referenced user does not exist. Users of other
// companies are reported the same way so their existence does not leak.
// Non-owners assign only inside their own department and viewers only to
// themselves. Every violation wraps ErrInvalidAssignment.
func CheckAssignment(actor *Actor, assignee *Member) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	if !actor.Valid() {
		return fmt.Errorf("%w: incomplete identity", ErrForbidden)
	}
	if assignee == nil || assignee.CompanyID != actor.CompanyID {
		return fmt.Errorf("%w: assignee not found", ErrInvalidAssignment)
	}

	ok := actor.Role.decide(
		always,
		func() bool { return assignee.DepartmentID == actor.DepartmentID },
		func() bool { return assignee.ID == actor.ID },
	)
	if !ok {
		if IsViewer(actor.Role) {
			return fmt.Errorf("%w: viewers can only assign tasks to themselves", ErrInvalidAssignment)
		}
		return fmt.Errorf("%w: cannot assign task to user outside your department", ErrInvalidAssignment)
	}
	return nil
}

func inDepartment(actor *Actor, companyID, departmentID string) bool {
	return companyID == actor.CompanyID && departmentID == actor.DepartmentID
}
