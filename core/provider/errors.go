// Package provider describes the shared failure modes of external service
// calls so call sites can decide between retrying, cleaning up capacity, and
// surfacing the error to the operator.
package provider

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or invalid credential, or a missing
// target resource. It is never retried; it needs an operator.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s configuration error: %s", e.Provider, e.Reason)
}

// TransientError reports a timeout, 5xx, or rate limit other than a
// concurrency cap. Retryable.
type TransientError struct {
	Provider   string
	Reason     string
	StatusCode int
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transient error (status %d): %s", e.Provider, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s transient error: %s", e.Provider, e.Reason)
}

// CapacityError reports that the provider's concurrent-session cap was
// reached. Distinct from TransientError because it triggers cleanup before a
// retry.
type CapacityError struct {
	Provider string
	Reason   string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s concurrent session limit reached: %s", e.Provider, e.Reason)
}

// ValidationError reports a malformed request payload. The full detail is
// kept for diagnosis; the error is not retried blindly.
type ValidationError struct {
	Provider string
	Reason   string
	Detail   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s rejected request: %s", e.Provider, e.Reason)
}

// IsCapacity reports whether err is a concurrent-session-limit error.
func IsCapacity(err error) bool {
	var capacityErr *CapacityError
	return errors.As(err, &capacityErr)
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	var configErr *ConfigurationError
	return errors.As(err, &configErr)
}
