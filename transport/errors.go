package transport

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrServiceUnavailable means the backend could not be reached at all, as
// opposed to reaching it and being refused. The two must stay
// distinguishable so the UI can tell "you are logged out" from "the server
// is down".
var ErrServiceUnavailable = errors.New("service unavailable")

// APIError is a non-2xx response from the backend, carrying the
// human-readable message extracted from the response body when one was
// present.
type APIError struct {
	StatusCode int
	Message    string
	CallID     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is an APIError in the 401 class.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 401
}
