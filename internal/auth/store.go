package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsboard/opsboard/internal/platform/database"
)

// Profile is the account view returned by the auth endpoints.
type Profile struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Role           string    `json:"role"`
	CompanyID      string    `json:"company_id"`
	CompanyName    string    `json:"company_name"`
	DepartmentID   string    `json:"department_id"`
	DepartmentName string    `json:"department_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Registration describes a new company and its first owner.
type Registration struct {
	CompanyName    string
	DepartmentName string
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
}

// Store handles user-related database operations for authentication.
// The users table is not company-scoped, so lookups by email work before
// the caller's company is known.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Register creates the company, its first department and the owner account
// in one transaction.
func (s *Store) Register(ctx context.Context, reg Registration) (*Identity, error) {
	var identity *Identity
	err := database.WithTx(ctx, s.pool, func(ctx context.Context, q database.Querier) error {
		var companyID, departmentID, userID string
		if err := q.QueryRow(ctx,
			"INSERT INTO companies (name) VALUES ($1) RETURNING id",
			reg.CompanyName,
		).Scan(&companyID); err != nil {
			return fmt.Errorf("inserting company: %w", err)
		}

		if err := q.QueryRow(ctx,
			"INSERT INTO departments (company_id, name) VALUES ($1, $2) RETURNING id",
			companyID, reg.DepartmentName,
		).Scan(&departmentID); err != nil {
			return fmt.Errorf("inserting department: %w", err)
		}

		err := q.QueryRow(ctx,
			`INSERT INTO users (company_id, department_id, email, password_hash, first_name, last_name, role)
			 VALUES ($1, $2, $3, $4, $5, $6, 'owner')
			 RETURNING id`,
			companyID, departmentID, reg.Email, reg.PasswordHash, reg.FirstName, reg.LastName,
		).Scan(&userID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrEmailTaken
			}
			return fmt.Errorf("inserting owner: %w", err)
		}

		identity = &Identity{
			UserID:       userID,
			CompanyID:    companyID,
			DepartmentID: departmentID,
			Role:         "owner",
			Email:        reg.Email,
			TokenType:    TokenTypeAccess,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// LookupCredentials returns the identity and password hash for email.
func (s *Store) LookupCredentials(ctx context.Context, email string) (*Identity, string, error) {
	var identity Identity
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT id, company_id, department_id, role, email, password_hash
		 FROM users WHERE lower(email) = lower($1)`,
		email,
	).Scan(&identity.UserID, &identity.CompanyID, &identity.DepartmentID, &identity.Role, &identity.Email, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("querying credentials: %w", err)
	}
	identity.TokenType = TokenTypeAccess
	return &identity, hash, nil
}

// GetIdentity reloads a user's current role and placement.
func (s *Store) GetIdentity(ctx context.Context, userID string) (*Identity, error) {
	var identity Identity
	err := s.pool.QueryRow(ctx,
		"SELECT id, company_id, department_id, role, email FROM users WHERE id = $1",
		userID,
	).Scan(&identity.UserID, &identity.CompanyID, &identity.DepartmentID, &identity.Role, &identity.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	identity.TokenType = TokenTypeAccess
	return &identity, nil
}

// GetProfile loads the account view for userID.
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.first_name, u.last_name, u.role,
		        c.id, c.name, d.id, d.name, u.created_at
		 FROM users u
		 JOIN companies c ON c.id = u.company_id
		 JOIN departments d ON d.id = u.department_id
		 WHERE u.id = $1`,
		userID,
	).Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role,
		&p.CompanyID, &p.CompanyName, &p.DepartmentID, &p.DepartmentName, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return &p, nil
}
