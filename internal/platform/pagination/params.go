package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps pageSize to keep list queries bounded.
	DefaultMaxPageSize = 100
)

// ErrInvalidPageSize reports a pageSize value that is not a positive integer.
var ErrInvalidPageSize = errors.New("pagination: invalid pageSize")

// Params holds the page values extracted from a list request.
type Params struct {
	PageSize int
}

// Options control defaults and caps for a given list endpoint.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// FromRequest parses pageSize from the request query string. Values above the
// cap are clamped rather than rejected.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}

	maxSize := opts.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}
	defaultSize := opts.DefaultPageSize
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	if defaultSize > maxSize {
		defaultSize = maxSize
	}

	raw := strings.TrimSpace(r.URL.Query().Get("pageSize"))
	if raw == "" {
		return Params{PageSize: defaultSize}, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return Params{}, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return Params{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if value > maxSize {
		value = maxSize
	}
	return Params{PageSize: value}, nil
}
