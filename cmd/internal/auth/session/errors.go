package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is the umbrella kind for all token/credential failures.
	// The API layer maps it to a generic 401; the internal reason is only logged.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionPersist is returned when the session-slot write fails during
	// issuance. No tokens are returned to the caller in that case.
	ErrSessionPersist = errors.New("session persist failed")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// UnauthorizedError carries an internal diagnostic reason.
// The reason must never be surfaced to clients verbatim; it exists so logs can
// distinguish expired vs tampered vs mismatched tokens.
type UnauthorizedError struct {
	Reason string
}

func (e UnauthorizedError) Error() string {
	if e.Reason == "" {
		return ErrUnauthorized.Error()
	}
	return fmt.Sprintf("%s: %s", ErrUnauthorized.Error(), e.Reason)
}

func (e UnauthorizedError) Unwrap() error { return ErrUnauthorized }

func unauthorized(reason string) error {
	return UnauthorizedError{Reason: reason}
}

func persistFailed(cause error) error {
	return fmt.Errorf("%w: %v", ErrSessionPersist, cause)
}

// UnauthorizedReason extracts the internal reason for logging ("" when absent).
func UnauthorizedReason(err error) string {
	var ue UnauthorizedError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return ""
}

// IsUnauthorized reports whether err represents ErrUnauthorized.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
