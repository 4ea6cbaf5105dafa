package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned for providers with no API key.
var ErrNotConfigured = errors.New("provider not configured")

// ErrTimeout is returned when a provider call hits its deadline.
var ErrTimeout = errors.New("provider call timed out")

// ProviderError is a non-2xx response from a provider.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, snippet(e.Body))
}

// IsRetryable reports whether a single retry is worth attempting: timeouts
// and provider 5xx are, client errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status >= 500
	}
	return false
}

// wrapCallErr maps a raw transport error onto the package error kinds.
func wrapCallErr(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", provider, ErrTimeout)
	}
	return fmt.Errorf("%s call failed: %w", provider, err)
}

func snippet(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
