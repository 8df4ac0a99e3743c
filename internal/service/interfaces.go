package service

import (
	"context"
	"time"

	"github.com/prperemyshlev/user-auth-service/internal/domain"
)

// AuthService defines methods for authentication operations
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, userID, refreshToken string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetCurrentUser(ctx context.Context, userID string) (*domain.User, error)
	ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// TokenSigner mints and validates access tokens.
type TokenSigner interface {
	GenerateAccessToken(user *domain.User) (string, time.Time, error)
	ValidateToken(token string) (*domain.TokenClaims, error)
}

type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

// AuthResult is returned by operations that issue a fresh token pair.
type AuthResult struct {
	User   *domain.User
	Tokens domain.TokenPair
}
