package models

import (
	"errors"
	"strings"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrBadCredentials is the only outward form of a failed or locked login.
	ErrBadCredentials = errors.New("invalid username or password")

	// Verification token errors
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenConsumed     = errors.New("token has already been used")
	ErrRateLimitExceeded = errors.New("too many requests, please try again later")
	ErrEmailUnavailable  = errors.New("email address is not available")
	ErrPolicyViolation   = errors.New("password does not satisfy policy")

	// External identity errors
	ErrLinkSessionInvalid = errors.New("link session is invalid or has expired")
	ErrLinkRequired       = errors.New("no local account is linked to this identity, link your account first")
	ErrLinkFailed         = errors.New("failed to link external account")
	ErrIdentityInUse      = errors.New("external identity is linked to another account")
)

// PolicyViolationError carries every violated password rule in evaluation order.
type PolicyViolationError struct {
	Violations []string
}

func (e *PolicyViolationError) Error() string {
	return ErrPolicyViolation.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *PolicyViolationError) Unwrap() error {
	return ErrPolicyViolation
}
