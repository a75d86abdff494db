package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrRateLimited        = errors.New("rate limited")

	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrCSRFRejected        = errors.New("csrf rejected")

	ErrEmailTaken            = errors.New("email already registered")
	ErrPendingExists         = errors.New("pending registration exists")
	ErrNoPendingRegistration = errors.New("no pending registration")
	ErrTooManyAttempts       = errors.New("too many attempts")
	ErrInvalidCode           = errors.New("invalid code")
	ErrResendLimitExceeded   = errors.New("resend limit exceeded")
	ErrWeakPassword          = errors.New("password too weak")
	ErrInvalidEmail          = errors.New("invalid email")
	ErrVerificationLocked    = errors.New("verification locked")

	ErrAlreadyLinked          = errors.New("oauth account already linked")
	ErrEmailAlreadyRegistered = errors.New("email already registered to another account")
	ErrProviderError          = errors.New("oauth provider error")

	ErrEmailSendFailure = errors.New("email send failed")

	ErrUserNotFound             = errors.New("user not found")
	ErrVerificationNotRequested = errors.New("verification not requested")
	ErrCodeExpired              = errors.New("code expired")

	// ErrStoreUnavailable distingue fallas de infraestructura de fallas de
	// autenticacion: un store caido jamas se reporta como "invalido".
	ErrStoreUnavailable = errors.New("store unavailable")
)

// RateLimitError transporta cuanto falta para que venza el lockout.
// errors.Is lo matchea contra ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// InvalidCodeError transporta los intentos restantes de un codigo OTP.
// errors.Is lo matchea contra ErrInvalidCode.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.Remaining)
}

func (e *InvalidCodeError) Is(target error) bool { return target == ErrInvalidCode }

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
