package domain

import (
	"errors"
	"strings"
)

var (
	// ErrAuthenticationRequired means no verified caller is attached to the request.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrAuthorizationDenied means the caller lacks the required permission.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrAccountLocked means the account is inside an active lockout window.
	ErrAccountLocked = errors.New("account locked")
	// ErrRateLimited means the per-address login throttle rejected the attempt.
	ErrRateLimited = errors.New("rate limited")
	// ErrValidationFailed is the root of every *ValidationError.
	ErrValidationFailed = errors.New("validation failed")
	// ErrStoreUnavailable wraps persistence failures on security-relevant paths.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidCredentials is returned for every unsuccessful login regardless of cause.
	ErrInvalidCredentials = errors.New("invalid username and/or password")
	// ErrSystemRole is returned when attempting to delete a system role.
	ErrSystemRole = errors.New("system roles cannot be deleted")
)

// ValidationError carries every reason a candidate was rejected.
type ValidationError struct {
	Reasons []string
}

// NewValidationError builds a ValidationError from the supplied reasons.
func NewValidationError(reasons ...string) *ValidationError {
	copied := make([]string, len(reasons))
	copy(copied, reasons)
	return &ValidationError{Reasons: copied}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Reasons) == 0 {
		return ErrValidationFailed.Error()
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(e.Reasons, "; ")
}

// Unwrap lets errors.Is match ErrValidationFailed.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// ValidationReasons extracts the reasons from err, if any.
func ValidationReasons(err error) []string {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Reasons
	}
	return nil
}
