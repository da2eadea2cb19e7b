// Package sources holds the plumbing shared by the Meetup and SwissRPG
// adapters: the error taxonomy and a JSON transport behind a circuit breaker.
package sources

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthentication marks a call rejected because the credentials are
// missing, expired or revoked. It is the only error the refresh guard
// retries on.
var ErrAuthentication = errors.New("authentication failed")

// TransientError is a failure that may succeed on the next tick: network
// errors, 5xx and 429 responses, and an open circuit breaker.
type TransientError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient error (status %d): %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient error: %v", e.Source, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// APIError is a non-retryable rejection by the remote API.
type APIError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Source, e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrAuthentication) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrAuthentication && e.StatusCode == http.StatusUnauthorized
}

// IsTransient reports whether err is worth retrying on a later pass.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsNotFound reports whether err is a 404 from the remote API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// classify maps a response status to an error, or nil for 2xx.
func classify(source string, status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransientError{Source: source, StatusCode: status, Err: errors.New(body)}
	default:
		return &APIError{Source: source, StatusCode: status, Body: body}
	}
}
