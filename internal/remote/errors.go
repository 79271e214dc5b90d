package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/pysugar/workspace-mirror/internal/util"
)

const maxErrorBody = 512

// ErrUnauthorized marks an auth-shaped failure (HTTP 401).
var ErrUnauthorized = errors.New("remote: unauthorized")

// APIError is a non-2xx response from a provider API.
type APIError struct {
	Provider   string
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Operation, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Temporary reports rate limiting and server-side failures.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsAuthFailure reports whether err should trigger a credential refresh.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsTimeout reports whether err is a request timeout (client or per-call deadline).
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NewAPIError builds an APIError, truncating the body for logs.
func NewAPIError(provider, operation string, statusCode int, body []byte) *APIError {
	return &APIError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: statusCode,
		Body:       util.TruncateLog(string(body), maxErrorBody),
	}
}
