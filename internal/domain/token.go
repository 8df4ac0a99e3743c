package domain

import "time"

// TokenClaims is the identity carried by a validated access token.
type TokenClaims struct {
	UserID    string    `json:"sub"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// TokenPair represents a pair of access and refresh tokens
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	TokenType             string    `json:"token_type"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// ExpiresIn returns the access token lifetime in whole seconds relative to now.
func (p TokenPair) ExpiresIn(now time.Time) int {
	secs := int(p.AccessTokenExpiresAt.Sub(now).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

// RefreshToken is the persisted form of an opaque refresh token. Only the
// SHA-256 of the token value is stored.
type RefreshToken struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	IsRevoked bool      `json:"is_revoked" db:"is_revoked"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsActive reports whether the token may still be exchanged at now.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt.After(now)
}

// PasswordResetToken is a single-use credential that authorizes one password
// change. Only the SHA-256 of the token value is stored.
type PasswordResetToken struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	TokenHash string     `json:"-" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	IsUsed    bool       `json:"is_used" db:"is_used"`
	UsedAt    *time.Time `json:"used_at" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// IsUsable reports whether the token is unused and unexpired at now.
func (t *PasswordResetToken) IsUsable(now time.Time) bool {
	return !t.IsUsed && t.ExpiresAt.After(now)
}

// MarkUsed consumes the token.
func (t *PasswordResetToken) MarkUsed(now time.Time) {
	t.IsUsed = true
	t.UsedAt = &now
}
