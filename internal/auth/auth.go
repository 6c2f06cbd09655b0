package auth

import (
	"errors"

	"github.com/opsboard/opsboard/internal/authz"
)

var (
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Identity represents an authenticated user's claims.
type Identity struct {
	UserID       string `json:"user_id"`
	CompanyID    string `json:"company_id"`
	DepartmentID string `json:"department_id"`
	Role         string `json:"role"`
	Email        string `json:"email"`
	TokenType    string `json:"token_type"` // "access" or "refresh"
}

// Actor converts the identity into the authorization principal. Role names
// outside the closed set fail with authz.ErrUnknownRole.
func (i *Identity) Actor() (*authz.Actor, error) {
	role, err := authz.ParseRole(i.Role)
	if err != nil {
		return nil, err
	}
	return &authz.Actor{
		ID:           i.UserID,
		Email:        i.Email,
		Role:         role,
		CompanyID:    i.CompanyID,
		DepartmentID: i.DepartmentID,
	}, nil
}
