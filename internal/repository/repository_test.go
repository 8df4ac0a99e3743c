package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prperemyshlev/user-auth-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type PostgresStoreSuite struct {
	suite.Suite
	db    *sql.DB
	mock  sqlmock.Sqlmock
	store *postgresStore
	ctx   context.Context
	now   time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.db = db
	s.mock = mock
	s.store = newPostgresStore(db)
	s.ctx = context.Background()
	s.now = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	_ = s.db.Close()
}

func (s *PostgresStoreSuite) userRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "full_name", "password_hash", "role",
		"failed_login_attempts", "lockout_until", "created_at", "updated_at",
	})
}

func (s *PostgresStoreSuite) TestExistsByEmail() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`)).
		WithArgs("Ann@Example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.store.Users().ExistsByEmail(s.ctx, "Ann@Example.com")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *PostgresStoreSuite) TestCreateUserAssignsDefaults() {
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs(sqlmock.AnyArg(), "ann@example.com", "Ann", "hash", domain.DefaultRole, 0, sqlmock.AnyArg(), s.now, s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user := &domain.User{Email: "ann@example.com", FullName: "Ann", PasswordHash: "hash", CreatedAt: s.now}
	s.Require().NoError(s.store.Users().Create(s.ctx, user))
	s.NotEmpty(user.ID)
	s.Equal(domain.DefaultRole, user.Role)
	s.Equal(s.now, user.UpdatedAt)
}

func (s *PostgresStoreSuite) TestCreateUserDuplicateEmail() {
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_lower_key"})

	err := s.store.Users().Create(s.ctx, &domain.User{Email: "ann@example.com", PasswordHash: "hash"})
	s.ErrorIs(err, ErrDuplicateEmail)
}

func (s *PostgresStoreSuite) TestGetByEmailScansLockout() {
	until := s.now.Add(15 * time.Minute)
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE lower(email) = lower($1)`)).
		WithArgs("ann@example.com").
		WillReturnRows(s.userRow().AddRow("u1", "ann@example.com", "Ann", "hash", "User", 5, until, s.now, s.now))

	user, err := s.store.Users().GetByEmail(s.ctx, "ann@example.com")
	s.Require().NoError(err)
	s.Equal("u1", user.ID)
	s.Equal(5, user.FailedLoginAttempts)
	s.Require().NotNil(user.LockoutUntil)
	s.Equal(until, *user.LockoutUntil)
}

func (s *PostgresStoreSuite) TestGetByIDNotFound() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.store.Users().GetByID(s.ctx, "missing")
	s.ErrorIs(err, ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateUserNotFound() {
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE users`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.store.Users().Update(s.ctx, &domain.User{ID: "missing", UpdatedAt: s.now})
	s.ErrorIs(err, ErrNotFound)
}

func (s *PostgresStoreSuite) TestWithinTxCommitsAndLocksRows() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE lower(email) = lower($1) FOR UPDATE`)).
		WithArgs("ann@example.com").
		WillReturnRows(s.userRow().AddRow("u1", "ann@example.com", "Ann", "hash", "User", 0, nil, s.now, s.now))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE users`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	err := s.store.WithinTx(s.ctx, func(tx Store) error {
		user, err := tx.Users().GetByEmailForUpdate(s.ctx, "ann@example.com")
		if err != nil {
			return err
		}
		user.RecordFailure(s.now, 5, 15*time.Minute)
		return tx.Users().Update(s.ctx, user)
	})
	s.NoError(err)
}

func (s *PostgresStoreSuite) TestWithinTxRollsBackOnError() {
	boom := errors.New("boom")
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET is_revoked = $2`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectRollback()

	err := s.store.WithinTx(s.ctx, func(tx Store) error {
		if err := tx.RefreshTokens().Update(s.ctx, &domain.RefreshToken{ID: "t1", IsRevoked: true}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)
}

func (s *PostgresStoreSuite) TestWithinTxNestedReusesTransaction() {
	s.mock.ExpectBegin()
	s.mock.ExpectCommit()

	err := s.store.WithinTx(s.ctx, func(tx Store) error {
		return tx.WithinTx(s.ctx, func(Store) error { return nil })
	})
	s.NoError(err)
}

func (s *PostgresStoreSuite) TestRefreshTokenLookup() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM refresh_tokens WHERE token_hash = $1`)).
		WithArgs("hash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "is_revoked", "created_at"}).
			AddRow("t1", "u1", "hash", s.now.Add(time.Hour), false, s.now))

	token, err := s.store.RefreshTokens().GetByTokenHash(s.ctx, "hash")
	s.Require().NoError(err)
	s.Equal("u1", token.UserID)
	s.True(token.IsActive(s.now))
}

func (s *PostgresStoreSuite) TestRefreshTokenDuplicate() {
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO refresh_tokens`)).
		WillReturnError(&pq.Error{Code: "23505"})

	err := s.store.RefreshTokens().Create(s.ctx, &domain.RefreshToken{UserID: "u1", TokenHash: "hash"})
	s.ErrorIs(err, ErrDuplicateToken)
}

func (s *PostgresStoreSuite) TestRevokeAllForUser() {
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE`)).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.store.RefreshTokens().RevokeAllForUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.EqualValues(3, n)
}

func (s *PostgresStoreSuite) TestDeleteExpired() {
	s.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_tokens WHERE expires_at < $1`)).
		WithArgs(s.now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM password_reset_tokens WHERE expires_at < $1`)).
		WithArgs(s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.store.RefreshTokens().DeleteExpired(s.ctx, s.now)
	s.Require().NoError(err)
	s.EqualValues(2, n)

	n, err = s.store.PasswordResets().DeleteExpired(s.ctx, s.now)
	s.Require().NoError(err)
	s.EqualValues(1, n)
}

func (s *PostgresStoreSuite) TestPasswordResetLifecycle() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM password_reset_tokens WHERE token_hash = $1 FOR UPDATE`)).
		WithArgs("hash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "is_used", "used_at", "created_at"}).
			AddRow("r1", "u1", "hash", s.now.Add(time.Hour), false, nil, s.now))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE password_reset_tokens SET is_used = $2, used_at = $3 WHERE id = $1`)).
		WithArgs("r1", true, s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	err := s.store.WithinTx(s.ctx, func(tx Store) error {
		token, err := tx.PasswordResets().GetByTokenHashForUpdate(s.ctx, "hash")
		if err != nil {
			return err
		}
		s.True(token.IsUsable(s.now))
		token.MarkUsed(s.now)
		return tx.PasswordResets().Update(s.ctx, token)
	})
	s.NoError(err)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("23505")))
}

func TestLockClause(t *testing.T) {
	require.Equal(t, " FOR UPDATE", lockClause(true))
	require.Empty(t, lockClause(false))
}
