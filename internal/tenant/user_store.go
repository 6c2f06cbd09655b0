package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/platform/database"
)

const userColumns = `id, company_id, department_id, email, first_name, last_name, role, created_at, updated_at`

// NewUser is a user about to be inserted. PasswordHash is already hashed.
type NewUser struct {
	CompanyID    string
	DepartmentID string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         string
}

// UserListParams narrows a user listing. Boundary is mandatory; the
// company predicate is always added on top of it.
type UserListParams struct {
	CompanyID    string
	Boundary     authz.Boundary
	DepartmentID *string
	Role         *string
	Limit        int
	Offset       int
}

// UserStore handles user database operations. The users table carries no
// row-level security, so every query names the company explicitly.
type UserStore struct{}

func NewUserStore() *UserStore {
	return &UserStore{}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.CompanyID, &u.DepartmentID, &u.Email, &u.FirstName, &u.LastName,
		&u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user.
func (s *UserStore) Create(ctx context.Context, q database.Querier, nu NewUser) (*User, error) {
	u, err := scanUser(q.QueryRow(ctx,
		`INSERT INTO users (company_id, department_id, email, password_hash, first_name, last_name, role)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+userColumns,
		nu.CompanyID, nu.DepartmentID, nu.Email, nu.PasswordHash, nu.FirstName, nu.LastName, nu.Role,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrEmailTaken, nu.Email)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user of companyID. Users of other companies read as
// ErrUserNotFound.
func (s *UserStore) GetByID(ctx context.Context, q database.Querier, companyID, id string) (*User, error) {
	u, err := scanUser(q.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1 AND company_id = $2",
		id, companyID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// Update persists the mutable columns of u.
func (s *UserStore) Update(ctx context.Context, q database.Querier, u *User) (*User, error) {
	updated, err := scanUser(q.QueryRow(ctx,
		`UPDATE users
		 SET email = $3, first_name = $4, last_name = $5, role = $6, department_id = $7, updated_at = now()
		 WHERE id = $1 AND company_id = $2
		 RETURNING `+userColumns,
		u.ID, u.CompanyID, u.Email, u.FirstName, u.LastName, u.Role, u.DepartmentID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrEmailTaken, u.Email)
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return updated, nil
}

// List returns one page of users inside the boundary, plus the total.
func (s *UserStore) List(ctx context.Context, q database.Querier, p UserListParams) ([]User, int, error) {
	conditions, args, argN := buildUserConditions(p)
	where := strings.Join(conditions, " AND ")

	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	sql := fmt.Sprintf("SELECT %s FROM users WHERE %s ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d",
		userColumns, where, argN, argN+1)
	rows, err := q.Query(ctx, sql, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("scanning user: %w", scanErr)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating users: %w", err)
	}
	return users, total, nil
}

func buildUserConditions(p UserListParams) ([]string, []any, int) {
	conditions := []string{"company_id = $1"}
	args := []any{p.CompanyID}
	argN := 2

	clause, value := p.Boundary.Clause(argN)
	conditions = append(conditions, clause)
	args = append(args, value)
	argN++

	if p.DepartmentID != nil {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", argN))
		args = append(args, *p.DepartmentID)
		argN++
	}
	if p.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argN))
		args = append(args, *p.Role)
		argN++
	}
	return conditions, args, argN
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
