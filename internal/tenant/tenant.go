// Package tenant serves the company directory: the company itself, its
// departments and its users. Every read and write is bounded by the
// caller's authz scope and recorded in the audit trail.
package tenant

import (
	"errors"
	"time"
)

var ErrCompanyNotFound = errors.New("company not found")

// Company is the tenant root. Every other row belongs to exactly one.
type Company struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DepartmentCount int       `json:"department_count"`
	UserCount       int       `json:"user_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
