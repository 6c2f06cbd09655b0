package authz

import "errors"

var (
	ErrUnauthenticated   = errors.New("authentication required")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidAssignment = errors.New("invalid assignment")
	ErrUnknownRole       = errors.New("unknown role")
)
