package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prperemyshlev/user-auth-service/internal/domain"
	"github.com/prperemyshlev/user-auth-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newUser(t *testing.T, s *Store, email string) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, PasswordHash: "hash", CreatedAt: now}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func TestUsersCaseInsensitiveEmail(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := newUser(t, s, "Ann@Example.com")

	assert.Equal(t, domain.DefaultRole, u.Role)

	exists, err := s.Users().ExistsByEmail(ctx, "ann@example.COM")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.Users().GetByEmail(ctx, "ANN@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	err = s.Users().Create(ctx, &domain.User{Email: "ann@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
}

func TestUsersReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := newUser(t, s, "ann@example.com")

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	got.PasswordHash = "mutated"

	again, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash", again.PasswordHash)
}

func TestUsersNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.Users().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Users().GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	err = s.Users().Update(ctx, &domain.User{ID: "missing"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithinTxRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := newUser(t, s, "ann@example.com")
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx repository.Store) error {
		user, err := tx.Users().GetByEmailForUpdate(ctx, u.Email)
		require.NoError(t, err)
		user.PasswordHash = "changed"
		require.NoError(t, tx.Users().Update(ctx, user))
		require.NoError(t, tx.RefreshTokens().Create(ctx, &domain.RefreshToken{UserID: u.ID, TokenHash: "h1", ExpiresAt: now.Add(time.Hour)}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.RefreshTokens().GetByTokenHash(ctx, "h1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithinTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := newUser(t, s, "ann@example.com")

	err := s.WithinTx(ctx, func(tx repository.Store) error {
		return tx.WithinTx(ctx, func(inner repository.Store) error {
			return inner.RefreshTokens().Create(ctx, &domain.RefreshToken{UserID: u.ID, TokenHash: "h1", ExpiresAt: now.Add(time.Hour)})
		})
	})
	require.NoError(t, err)

	tok, err := s.RefreshTokens().GetByTokenHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, tok.UserID)
}

func TestWithinTxSerializesConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := newUser(t, s, "ann@example.com")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithinTx(ctx, func(tx repository.Store) error {
				user, err := tx.Users().GetByEmailForUpdate(ctx, u.Email)
				if err != nil {
					return err
				}
				user.RecordFailure(now, 1000, time.Minute)
				return tx.Users().Update(ctx, user)
			})
		}()
	}
	wg.Wait()

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.FailedLoginAttempts)
}

func TestRefreshTokens(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := newUser(t, s, "ann@example.com")
	repo := s.RefreshTokens()

	live := &domain.RefreshToken{UserID: u.ID, TokenHash: "live", ExpiresAt: now.Add(time.Hour)}
	old := &domain.RefreshToken{UserID: u.ID, TokenHash: "old", ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, repo.Create(ctx, live))
	require.NoError(t, repo.Create(ctx, old))
	assert.ErrorIs(t, repo.Create(ctx, &domain.RefreshToken{TokenHash: "live"}), repository.ErrDuplicateToken)

	n, err := repo.RevokeAllForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := repo.GetByTokenHash(ctx, "live")
	require.NoError(t, err)
	assert.True(t, got.IsRevoked)

	require.NoError(t, repo.Delete(ctx, got.ID))
	_, err = repo.GetByTokenHash(ctx, "live")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, got.ID), repository.ErrNotFound)
}

func TestPasswordResets(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := newUser(t, s, "ann@example.com")
	repo := s.PasswordResets()

	tok := &domain.PasswordResetToken{UserID: u.ID, TokenHash: "r1", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, tok))

	got, err := repo.GetByTokenHashForUpdate(ctx, "r1")
	require.NoError(t, err)
	got.MarkUsed(now)
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.GetByTokenHash(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, again.IsUsed)
	require.NotNil(t, again.UsedAt)

	n, err := repo.DeleteExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStore()

	_, err := s.Users().ExistsByEmail(ctx, "ann@example.com")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.WithinTx(ctx, func(repository.Store) error { return nil }), context.Canceled)
	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
}
