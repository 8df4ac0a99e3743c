package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/user-auth-service/internal/domain"
)

const refreshTokenColumns = `id, user_id, token_hash, expires_at, is_revoked, created_at`

// refreshTokenRepository implements RefreshTokenRepository interface
type refreshTokenRepository struct {
	q         querier
	forUpdate bool
}

// Create creates a new refresh token
func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (` + refreshTokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.IsRevoked,
		token.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("refresh token already exists: %w", ErrDuplicateToken)
		}
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	return nil
}

// GetByTokenHash retrieves a refresh token by its hash
func (r *refreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	return r.getByTokenHash(ctx, tokenHash, "")
}

func (r *refreshTokenRepository) GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	return r.getByTokenHash(ctx, tokenHash, lockClause(r.forUpdate))
}

func (r *refreshTokenRepository) getByTokenHash(ctx context.Context, tokenHash, lock string) (*domain.RefreshToken, error) {
	token := &domain.RefreshToken{}
	err := r.q.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`+lock, tokenHash,
	).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.IsRevoked,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh token not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return token, nil
}

// Update persists the revocation flag and expiry of token.
func (r *refreshTokenRepository) Update(ctx context.Context, token *domain.RefreshToken) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens SET is_revoked = $2, expires_at = $3 WHERE id = $1`,
		token.ID, token.IsRevoked, token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}
	return expectOneRow(result, "refresh token", token.ID)
}

// Delete deletes a refresh token by ID
func (r *refreshTokenRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return expectOneRow(result, "refresh token", id)
}

// RevokeAllForUser revokes every live refresh token of a user.
func (r *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// DeleteExpired deletes refresh tokens that expired before the given instant
func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
