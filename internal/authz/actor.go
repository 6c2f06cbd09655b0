package authz

// Actor is the authenticated principal for one request. It is built once
// from a verified token and never changes while the request runs.
type Actor struct {
	ID           string
	Email        string
	Role         Role
	CompanyID    string
	DepartmentID string
}

// Valid reports whether every attribute the policy depends on is present.
// Partially populated actors are denied everywhere.
func (a *Actor) Valid() bool {
	return a != nil &&
		a.ID != "" &&
		a.Role != nil &&
		a.CompanyID != "" &&
		a.DepartmentID != ""
}
