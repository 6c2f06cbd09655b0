package tenant

import (
	"errors"
	"time"

	"github.com/opsboard/opsboard/internal/authz"
)

var ErrDepartmentNotFound = errors.New("department not found")

// Department groups users and tasks inside a company.
type Department struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UserCount   int       `json:"user_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Resource is the ownership snapshot the row gate decides on. A
// department is its own department.
func (d *Department) Resource() authz.Resource {
	return authz.Resource{
		Kind:         authz.ResourceDepartment,
		ID:           d.ID,
		CompanyID:    d.CompanyID,
		DepartmentID: d.ID,
	}
}
