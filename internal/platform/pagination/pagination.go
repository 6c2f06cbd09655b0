// Package pagination parses the page and limit query parameters shared by
// every list endpoint.
package pagination

import (
	"errors"
	"net/url"
	"strconv"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var (
	ErrInvalidPage  = errors.New("invalid page")
	ErrInvalidLimit = errors.New("invalid limit")
)

// Parse reads page (default 1) and limit (default DefaultLimit, capped at
// MaxLimit). Both must be positive integers when present.
func Parse(query url.Values) (page, limit int, err error) {
	page, limit = 1, DefaultLimit
	if raw := query.Get("page"); raw != "" {
		n, parseErr := strconv.Atoi(raw)
		if parseErr != nil || n < 1 {
			return 0, 0, ErrInvalidPage
		}
		page = n
	}
	if raw := query.Get("limit"); raw != "" {
		n, parseErr := strconv.Atoi(raw)
		if parseErr != nil || n < 1 {
			return 0, 0, ErrInvalidLimit
		}
		limit = min(n, MaxLimit)
	}
	return page, limit, nil
}

// Offset is the number of rows to skip for page.
func Offset(page, limit int) int {
	return (page - 1) * limit
}
