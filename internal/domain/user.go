package domain

import "time"

// DefaultRole is assigned to every newly registered account.
const DefaultRole = "User"

// User represents a user in the system
type User struct {
	ID                  string     `json:"id" db:"id"`
	Email               string     `json:"email" db:"email"`
	FullName            string     `json:"full_name" db:"full_name"`
	PasswordHash        string     `json:"-" db:"password_hash"`
	Role                string     `json:"role" db:"role"`
	FailedLoginAttempts int        `json:"-" db:"failed_login_attempts"`
	LockoutUntil        *time.Time `json:"-" db:"lockout_until"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// IsLocked reports whether a lockout window is still open at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockoutUntil != nil && u.LockoutUntil.After(now)
}

// RecordFailure counts a failed password check. An expired lockout window
// restarts the counter before the failure is added. When the counter reaches
// maxAttempts the account is locked until now+lockout. It reports whether
// this call applied a new lockout.
func (u *User) RecordFailure(now time.Time, maxAttempts int, lockout time.Duration) bool {
	if u.LockoutUntil != nil && !u.LockoutUntil.After(now) {
		u.FailedLoginAttempts = 0
		u.LockoutUntil = nil
	}

	u.FailedLoginAttempts++
	u.UpdatedAt = now

	if u.FailedLoginAttempts >= maxAttempts {
		until := now.Add(lockout)
		u.LockoutUntil = &until
		return true
	}
	return false
}

// RecordSuccess clears failure bookkeeping after a successful login.
func (u *User) RecordSuccess(now time.Time) {
	u.FailedLoginAttempts = 0
	u.LockoutUntil = nil
	u.UpdatedAt = now
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	c := *u
	if u.LockoutUntil != nil {
		until := *u.LockoutUntil
		c.LockoutUntil = &until
	}
	return &c
}
