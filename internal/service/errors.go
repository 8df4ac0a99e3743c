package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/user-auth-service/internal/utils"
)

// Errors returned by AuthService. Callers match them with errors.Is; the
// typed variants below also carry detail for errors.As.
var (
	ErrDuplicateAccount      = errors.New("an account with this email already exists")
	ErrWeakPassword          = errors.New("password does not satisfy the password policy")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountLocked         = errors.New("account is temporarily locked")
	ErrInvalidToken          = errors.New("invalid or expired token")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired password reset token")
	ErrNotFound              = errors.New("user not found")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrNotificationFailed    = errors.New("failed to deliver notification")
	ErrInvalidEmail          = errors.New("invalid email format")
)

// WeakPasswordError names the first password rule that was violated.
type WeakPasswordError struct {
	Rule utils.PasswordRule
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("%s: %s", ErrWeakPassword.Error(), e.Rule.Description())
}

func (e *WeakPasswordError) Unwrap() error {
	return ErrWeakPassword
}

// AccountLockedError reports when the lockout window closes.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked.Error(), e.Until.UTC().Format(time.RFC3339))
}

func (e *AccountLockedError) Unwrap() error {
	return ErrAccountLocked
}

// RetryAfter returns how long until the lockout ends, never negative.
func (e *AccountLockedError) RetryAfter(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

var knownErrors = []error{
	ErrDuplicateAccount,
	ErrWeakPassword,
	ErrInvalidCredentials,
	ErrAccountLocked,
	ErrInvalidToken,
	ErrInvalidOrExpiredToken,
	ErrNotFound,
	ErrStorageUnavailable,
	ErrNotificationFailed,
	ErrInvalidEmail,
}

// classify passes service errors through unchanged and reports anything
// else, typically a repository or transaction failure, as storage trouble.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
