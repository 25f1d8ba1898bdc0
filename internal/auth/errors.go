package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the handler boundary. Messages are stable and
// never include token values.
var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailNotVerified    = errors.New("email not verified")
	ErrPendingApproval     = errors.New("waiting for admin approval")
	ErrAlreadyRegistered   = errors.New("email already registered")
	ErrEmailExists         = errors.New("email already exists")
	ErrTooManyAttempts     = errors.New("too many attempts")
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired OTP")
	ErrInvalidOrExpired    = errors.New("invalid or expired token")
	ErrSessionSuperseded   = errors.New("session superseded by a newer login")
	ErrNotFound            = errors.New("not found")
)

// RateLimitedError carries the retry-after hint for 429 responses.
type RateLimitedError struct {
	RetryAfter int // seconds
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("please wait %ds before requesting another OTP", e.RetryAfter)
}
