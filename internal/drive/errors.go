// Package drive implements the Google Drive appDataFolder REST protocol for
// a single application config document: search by well-known filename,
// multipart create/update, and raw content download.
package drive

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, drive.ErrUnauthorized) to check.
var (
	// ErrUnauthorized means the bearer token was rejected (HTTP 401). The
	// session layer treats this as token expiry, never as a display error.
	ErrUnauthorized = errors.New("drive: unauthorized")

	// ErrNotFound means the target file id no longer exists (HTTP 404),
	// e.g. the remote document was deleted out-of-band.
	ErrNotFound = errors.New("drive: not found")

	// ErrBadResponse means the backend returned 2xx but the body did not
	// have the expected shape.
	ErrBadResponse = errors.New("drive: malformed response")
)

// APIError wraps a sentinel error with the HTTP status code and the API
// error body for debugging.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-success HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}
