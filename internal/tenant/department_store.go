package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/platform/database"
)

const departmentColumns = `id, company_id, name, description,
	(SELECT COUNT(*) FROM users u WHERE u.department_id = departments.id),
	created_at, updated_at`

// DepartmentStore handles department database operations.
// Methods accept database.Querier so they can run inside WithCompanyTx.
type DepartmentStore struct{}

func NewDepartmentStore() *DepartmentStore {
	return &DepartmentStore{}
}

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	if err := row.Scan(&d.ID, &d.CompanyID, &d.Name, &d.Description, &d.UserCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByID retrieves a department of companyID.
func (s *DepartmentStore) GetByID(ctx context.Context, q database.Querier, companyID, id string) (*Department, error) {
	d, err := scanDepartment(q.QueryRow(ctx,
		"SELECT "+departmentColumns+" FROM departments WHERE id = $1 AND company_id = $2",
		id, companyID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, fmt.Errorf("getting department: %w", err)
	}
	return d, nil
}

// List returns the departments of companyID inside the boundary.
func (s *DepartmentStore) List(ctx context.Context, q database.Querier, companyID string, boundary authz.Boundary) ([]Department, error) {
	clause, value := boundary.Clause(2)
	rows, err := q.Query(ctx,
		"SELECT "+departmentColumns+" FROM departments WHERE company_id = $1 AND "+clause+" ORDER BY name",
		companyID, value,
	)
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	defer rows.Close()

	departments := []Department{}
	for rows.Next() {
		d, scanErr := scanDepartment(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning department: %w", scanErr)
		}
		departments = append(departments, *d)
	}
	return departments, rows.Err()
}
