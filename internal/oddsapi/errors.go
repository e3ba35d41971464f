package oddsapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized covers missing keys, rejected keys and exhausted usage quota. Runs stop on it.
	ErrUnauthorized = errors.New("oddsapi: unauthorized or quota exhausted")
	// ErrMalformedResponse indicates a response body that does not match the documented shape.
	ErrMalformedResponse = errors.New("oddsapi: malformed response")
)

// HTTPError is a non-200 answer from the API.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("odds api error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("odds api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("odds api error (%d)", e.StatusCode)
}

// Unwrap maps authentication and quota failures onto ErrUnauthorized.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}
