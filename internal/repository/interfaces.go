package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/user-auth-service/internal/domain"
)

// UserRepository defines methods for user operations. Email lookups are
// case-insensitive.
type UserRepository interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetByEmailForUpdate additionally locks the row until the surrounding
	// transaction ends.
	GetByEmailForUpdate(ctx context.Context, email string) (*domain.User, error)
}

// RefreshTokenRepository stores refresh tokens keyed by the hash of their value.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	Update(ctx context.Context, token *domain.RefreshToken) error
	Delete(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PasswordResetRepository stores password reset tokens keyed by the hash of
// their value.
type PasswordResetRepository interface {
	Create(ctx context.Context, token *domain.PasswordResetToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error)
	GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error)
	Update(ctx context.Context, token *domain.PasswordResetToken) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Store is the unit of work over all repositories. Repositories obtained from
// the Store passed to a WithinTx callback share that transaction; if the
// callback returns an error nothing it wrote is kept.
type Store interface {
	Users() UserRepository
	RefreshTokens() RefreshTokenRepository
	PasswordResets() PasswordResetRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}
