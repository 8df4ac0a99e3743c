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

const passwordResetColumns = `id, user_id, token_hash, expires_at, is_used, used_at, created_at`

type passwordResetRepository struct {
	q         querier
	forUpdate bool
}

func (r *passwordResetRepository) Create(ctx context.Context, token *domain.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (` + passwordResetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
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
		token.IsUsed,
		nullTime(token.UsedAt),
		token.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("password reset token already exists: %w", ErrDuplicateToken)
		}
		return fmt.Errorf("failed to create password reset token: %w", err)
	}
	return nil
}

func (r *passwordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	return r.getByTokenHash(ctx, tokenHash, "")
}

func (r *passwordResetRepository) GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	return r.getByTokenHash(ctx, tokenHash, lockClause(r.forUpdate))
}

func (r *passwordResetRepository) getByTokenHash(ctx context.Context, tokenHash, lock string) (*domain.PasswordResetToken, error) {
	token := &domain.PasswordResetToken{}
	var usedAt sql.NullTime

	err := r.q.QueryRowContext(ctx,
		`SELECT `+passwordResetColumns+` FROM password_reset_tokens WHERE token_hash = $1`+lock, tokenHash,
	).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.IsUsed,
		&usedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("password reset token not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get password reset token: %w", err)
	}

	if usedAt.Valid {
		t := usedAt.Time
		token.UsedAt = &t
	}
	return token, nil
}

func (r *passwordResetRepository) Update(ctx context.Context, token *domain.PasswordResetToken) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE password_reset_tokens SET is_used = $2, used_at = $3 WHERE id = $1`,
		token.ID, token.IsUsed, nullTime(token.UsedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update password reset token: %w", err)
	}
	return expectOneRow(result, "password reset token", token.ID)
}

func (r *passwordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired password reset tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
