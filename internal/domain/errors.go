package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// Verification and credential error taxonomy. User-caused conditions
// (wrong code, exhausted attempts) are distinct from platform faults
// (corrupted ciphertext, storage failure); only the latter should alert.
var (
	ErrOTPNotFound        = errors.New("verification code not found")
	ErrOTPExpired         = errors.New("verification code expired")
	ErrTooManyAttempts    = errors.New("too many verification attempts")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrAlreadyVerified    = errors.New("code already verified")
	ErrCorruptedRecord    = errors.New("corrupted verification record")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccessDenied       = errors.New("access denied")
	ErrIssuance           = errors.New("could not issue verification code")
)

// InvalidCodeError is returned when a submitted code does not match and the
// attempt budget is not yet exhausted. It carries the remaining attempts so
// the caller can surface them.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid verification code (%d attempts remaining)", e.AttemptsRemaining)
}

// Is makes errors.Is(err, ErrInvalidCode) match.
func (e *InvalidCodeError) Is(target error) bool {
	return target == ErrInvalidCode
}
