package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from a provider API.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.Status, e.Body)
}

// ProviderError is returned when a provider cannot be constructed.
type ProviderError struct {
	Provider string
	Hint     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Hint)
}

// IsRetryable reports whether a Chat error is worth retrying: rate limits,
// server-side failures, and transport errors. Client errors and cancelled
// contexts are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return false
	}
	// Anything else from the HTTP client is a transport failure.
	return true
}
