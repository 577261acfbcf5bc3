package sora

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the upstream API. Message carries the
// upstream error text when the body was parseable, Payload the decoded body.
type APIError struct {
	Status  int
	Message string
	Payload any
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("sora api error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("sora api error (status %d)", e.Status)
}

// DescribeError renders an error for client responses, preferring upstream
// text and falling back to the supplied default.
func DescribeError(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}

// ResolveErrorStatus maps an error to the HTTP status the agent should
// respond with. Upstream statuses pass through; everything else is a 500.
func ResolveErrorStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status <= 599 {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}
