package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/user-auth-service/internal/domain"
	"github.com/prperemyshlev/user-auth-service/internal/repository"
)

type userRepository struct{ sc scope }

func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.sc.run(ctx, func(st *state) error {
		_, exists = st.emails[emailKey(email)]
		return nil
	})
	return exists, err
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	return r.sc.run(ctx, func(st *state) error {
		key := emailKey(user.Email)
		if _, taken := st.emails[key]; taken {
			return fmt.Errorf("user with email %s already exists: %w", user.Email, repository.ErrDuplicateEmail)
		}
		if user.ID == "" {
			user.ID = newID()
		}
		if user.Role == "" {
			user.Role = domain.DefaultRole
		}
		stamp(&user.CreatedAt)
		if user.UpdatedAt.IsZero() {
			user.UpdatedAt = user.CreatedAt
		}
		st.users[user.ID] = user.Clone()
		st.emails[key] = user.ID
		return nil
	})
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	return r.sc.run(ctx, func(st *state) error {
		existing, ok := st.users[user.ID]
		if !ok {
			return fmt.Errorf("user with id %s not found: %w", user.ID, repository.ErrNotFound)
		}
		oldKey, newKey := emailKey(existing.Email), emailKey(user.Email)
		if oldKey != newKey {
			if _, taken := st.emails[newKey]; taken {
				return fmt.Errorf("user with email %s already exists: %w", user.Email, repository.ErrDuplicateEmail)
			}
			delete(st.emails, oldKey)
			st.emails[newKey] = user.ID
		}
		stamp(&user.UpdatedAt)
		st.users[user.ID] = user.Clone()
		return nil
	})
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var user *domain.User
	err := r.sc.run(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return fmt.Errorf("user with id %s not found: %w", id, repository.ErrNotFound)
		}
		user = u.Clone()
		return nil
	})
	return user, err
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user *domain.User
	err := r.sc.run(ctx, func(st *state) error {
		id, ok := st.emails[emailKey(email)]
		if !ok {
			return fmt.Errorf("user with email %s not found: %w", email, repository.ErrNotFound)
		}
		user = st.users[id].Clone()
		return nil
	})
	return user, err
}

// GetByEmailForUpdate needs no extra locking: a transaction already holds
// the store mutex.
func (r *userRepository) GetByEmailForUpdate(ctx context.Context, email string) (*domain.User, error) {
	return r.GetByEmail(ctx, email)
}

type refreshTokenRepository struct{ sc scope }

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	return r.sc.run(ctx, func(st *state) error {
		if _, taken := st.refreshByHash[token.TokenHash]; taken {
			return fmt.Errorf("refresh token already exists: %w", repository.ErrDuplicateToken)
		}
		if token.ID == "" {
			token.ID = newID()
		}
		stamp(&token.CreatedAt)
		t := *token
		st.refresh[t.ID] = &t
		st.refreshByHash[t.TokenHash] = t.ID
		return nil
	})
}

func (r *refreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	var token *domain.RefreshToken
	err := r.sc.run(ctx, func(st *state) error {
		id, ok := st.refreshByHash[tokenHash]
		if !ok {
			return fmt.Errorf("refresh token not found: %w", repository.ErrNotFound)
		}
		t := *st.refresh[id]
		token = &t
		return nil
	})
	return token, err
}

func (r *refreshTokenRepository) GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	return r.GetByTokenHash(ctx, tokenHash)
}

func (r *refreshTokenRepository) Update(ctx context.Context, token *domain.RefreshToken) error {
	return r.sc.run(ctx, func(st *state) error {
		existing, ok := st.refresh[token.ID]
		if !ok {
			return fmt.Errorf("refresh token with id %s not found: %w", token.ID, repository.ErrNotFound)
		}
		existing.IsRevoked = token.IsRevoked
		existing.ExpiresAt = token.ExpiresAt
		return nil
	})
}

func (r *refreshTokenRepository) Delete(ctx context.Context, id string) error {
	return r.sc.run(ctx, func(st *state) error {
		existing, ok := st.refresh[id]
		if !ok {
			return fmt.Errorf("refresh token with id %s not found: %w", id, repository.ErrNotFound)
		}
		delete(st.refreshByHash, existing.TokenHash)
		delete(st.refresh, id)
		return nil
	})
}

func (r *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.sc.run(ctx, func(st *state) error {
		for _, t := range st.refresh {
			if t.UserID == userID && !t.IsRevoked {
				t.IsRevoked = true
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.sc.run(ctx, func(st *state) error {
		for id, t := range st.refresh {
			if t.ExpiresAt.Before(before) {
				delete(st.refreshByHash, t.TokenHash)
				delete(st.refresh, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

type passwordResetRepository struct{ sc scope }

func (r *passwordResetRepository) Create(ctx context.Context, token *domain.PasswordResetToken) error {
	return r.sc.run(ctx, func(st *state) error {
		if _, taken := st.resetsByHash[token.TokenHash]; taken {
			return fmt.Errorf("password reset token already exists: %w", repository.ErrDuplicateToken)
		}
		if token.ID == "" {
			token.ID = newID()
		}
		stamp(&token.CreatedAt)
		st.resets[token.ID] = cloneReset(token)
		st.resetsByHash[token.TokenHash] = token.ID
		return nil
	})
}

func (r *passwordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	var token *domain.PasswordResetToken
	err := r.sc.run(ctx, func(st *state) error {
		id, ok := st.resetsByHash[tokenHash]
		if !ok {
			return fmt.Errorf("password reset token not found: %w", repository.ErrNotFound)
		}
		token = cloneReset(st.resets[id])
		return nil
	})
	return token, err
}

func (r *passwordResetRepository) GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	return r.GetByTokenHash(ctx, tokenHash)
}

func (r *passwordResetRepository) Update(ctx context.Context, token *domain.PasswordResetToken) error {
	return r.sc.run(ctx, func(st *state) error {
		existing, ok := st.resets[token.ID]
		if !ok {
			return fmt.Errorf("password reset token with id %s not found: %w", token.ID, repository.ErrNotFound)
		}
		updated := cloneReset(existing)
		updated.IsUsed = token.IsUsed
		if token.UsedAt != nil {
			u := *token.UsedAt
			updated.UsedAt = &u
		} else {
			updated.UsedAt = nil
		}
		st.resets[token.ID] = updated
		return nil
	})
}

func (r *passwordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.sc.run(ctx, func(st *state) error {
		for id, t := range st.resets {
			if t.ExpiresAt.Before(before) {
				delete(st.resetsByHash, t.TokenHash)
				delete(st.resets, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
