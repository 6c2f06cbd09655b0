package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opsboard/opsboard/internal/platform/database"
)

// CompanyStore reads company rows.
type CompanyStore struct{}

func NewCompanyStore() *CompanyStore {
	return &CompanyStore{}
}

// GetByID retrieves a company with its department and user counts.
func (s *CompanyStore) GetByID(ctx context.Context, q database.Querier, id string) (*Company, error) {
	var c Company
	err := q.QueryRow(ctx,
		`SELECT c.id, c.name,
		        (SELECT COUNT(*) FROM departments d WHERE d.company_id = c.id),
		        (SELECT COUNT(*) FROM users u WHERE u.company_id = c.id),
		        c.created_at, c.updated_at
		 FROM companies c WHERE c.id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.DepartmentCount, &c.UserCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("getting company: %w", err)
	}
	return &c, nil
}
