package tenant

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/opsboard/opsboard/internal/authz"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailInvalid      = errors.New("invalid email address")
	ErrEmailTaken        = errors.New("email already registered")
	ErrPasswordTooShort  = errors.New("password must be at least 8 characters")
	ErrRoleInvalid       = errors.New("invalid role")
	ErrNameTooLong       = errors.New("name must not exceed 100 characters")
	ErrInvalidDepartment = errors.New("department does not belong to this company")
	ErrOwnRoleChange     = errors.New("owners cannot change their own role")
)

const (
	minPasswordLength = 8
	maxNameLength     = 100
)

// User is a member of a company. The password hash never leaves the store.
type User struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"company_id"`
	DepartmentID string    `json:"department_id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Resource is the ownership snapshot the row gate decides on.
func (u *User) Resource() authz.Resource {
	return authz.Resource{
		Kind:         authz.ResourceUser,
		ID:           u.ID,
		CompanyID:    u.CompanyID,
		DepartmentID: u.DepartmentID,
	}
}

// ValidateEmail checks that an email address is syntactically valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrEmailInvalid)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrEmailInvalid, err)
	}
	if addr.Address != email {
		return fmt.Errorf("%w: use a bare address", ErrEmailInvalid)
	}
	return nil
}

// ValidateRole normalizes a role name. Only the closed role set is
// accepted.
func ValidateRole(name string) (string, error) {
	role, err := authz.ParseRole(name)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrRoleInvalid, name)
	}
	return role.String(), nil
}

func validateName(name string) error {
	if len([]rune(strings.TrimSpace(name))) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}
