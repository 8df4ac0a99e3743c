package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/user-auth-service/internal/domain"
	"github.com/prperemyshlev/user-auth-service/internal/repository"
	"github.com/prperemyshlev/user-auth-service/internal/utils"
)

const tokenTypeBearer = "Bearer"

// issueTokens mints an access token and persists a new refresh token through
// tx, so the refresh token only exists if the surrounding transaction commits.
func (s *authService) issueTokens(ctx context.Context, tx repository.Store, user *domain.User, now time.Time) (*AuthResult, error) {
	accessToken, accessExpiresAt, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := utils.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	entity := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: utils.HashToken(refreshToken),
		ExpiresAt: now.Add(s.cfg.RefreshTokenExpiry),
		CreatedAt: now,
	}
	if err := tx.RefreshTokens().Create(ctx, entity); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &AuthResult{
		User: user,
		Tokens: domain.TokenPair{
			AccessToken:           accessToken,
			RefreshToken:          refreshToken,
			TokenType:             tokenTypeBearer,
			AccessTokenExpiresAt:  accessExpiresAt,
			RefreshTokenExpiresAt: entity.ExpiresAt,
		},
	}, nil
}
