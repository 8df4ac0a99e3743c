package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prperemyshlev/user-auth-service/internal/domain"
	"github.com/prperemyshlev/user-auth-service/internal/notification"
	"github.com/prperemyshlev/user-auth-service/internal/repository"
	"github.com/prperemyshlev/user-auth-service/internal/utils"
	"github.com/prperemyshlev/user-auth-service/pkg/observability"
	"go.uber.org/zap"
)

// dummyPassword is hashed once at construction so that logins for unknown
// emails spend the same time in the hasher as logins for real accounts.
const dummyPassword = "dummy-password-for-timing-equalization"

// Config holds the credential policy of the service.
type Config struct {
	MaxFailedAttempts  int
	LockoutDuration    time.Duration
	RefreshTokenExpiry time.Duration
	ResetTokenExpiry   time.Duration
	OperationTimeout   time.Duration
	RevokeOnReuse      bool
}

// DefaultConfig returns the standard policy: 5 attempts, 15 minute lockout,
// 7 day refresh tokens, 1 hour reset tokens.
func DefaultConfig() Config {
	return Config{
		MaxFailedAttempts:  5,
		LockoutDuration:    15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		ResetTokenExpiry:   time.Hour,
		OperationTimeout:   5 * time.Second,
	}
}

// Dependencies are the collaborators of the service. Metrics and Logger are
// optional.
type Dependencies struct {
	Store    repository.Store
	Hasher   utils.PasswordHasher
	Tokens   TokenSigner
	Notifier notification.Sender
	Metrics  *observability.AuthMetrics
	Logger   *zap.Logger
}

type Option func(*authService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *authService) { s.now = now }
}

// authService implements AuthService interface
type authService struct {
	store     repository.Store
	hasher    utils.PasswordHasher
	tokens    TokenSigner
	notifier  notification.Sender
	metrics   *observability.AuthMetrics
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
	dummyHash string
}

var _ AuthService = (*authService)(nil)

// NewAuthService creates a new auth service
func NewAuthService(deps Dependencies, cfg Config, opts ...Option) (AuthService, error) {
	if deps.Store == nil || deps.Hasher == nil || deps.Tokens == nil || deps.Notifier == nil {
		return nil, errors.New("auth service requires store, hasher, token signer and notifier")
	}

	def := DefaultConfig()
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = def.MaxFailedAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.RefreshTokenExpiry <= 0 {
		cfg.RefreshTokenExpiry = def.RefreshTokenExpiry
	}
	if cfg.ResetTokenExpiry <= 0 {
		cfg.ResetTokenExpiry = def.ResetTokenExpiry
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = def.OperationTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dummyHash, err := deps.Hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	s := &authService{
		store:     deps.Store,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		dummyHash: dummyHash,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *authService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

// Register creates an account. It does not sign the user in.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	email := utils.SanitizeEmail(input.Email)
	if !utils.ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}

	if rule := utils.ValidatePassword(input.Password); rule != "" {
		return nil, &WeakPasswordError{Rule: rule}
	}

	exists, err := s.store.Users().ExistsByEmail(ctx, email)
	if err != nil {
		return nil, classify("register", err)
	}
	if exists {
		return nil, ErrDuplicateAccount
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		Email:        email,
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: passwordHash,
		Role:         domain.DefaultRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateAccount
		}
		return nil, classify("register", err)
	}

	s.metrics.Registration(ctx)
	s.logger.Info("User registered", zap.String("user_id", user.ID))

	return user, nil
}

// Login verifies credentials and applies the lockout policy. The user row is
// locked for the duration of the attempt so concurrent failures are counted
// one by one.
func (s *authService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	email = utils.SanitizeEmail(email)
	now := s.now()

	var (
		result   *AuthResult
		loginErr error
		lockedID string
	)

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		user, err := tx.Users().GetByEmailForUpdate(ctx, email)
		if errors.Is(err, repository.ErrNotFound) {
			_, _ = s.hasher.Verify(password, s.dummyHash)
			loginErr = ErrInvalidCredentials
			return nil
		}
		if err != nil {
			return err
		}

		match := s.verifyPassword(user, password)

		if user.IsLocked(now) {
			loginErr = &AccountLockedError{Until: *user.LockoutUntil}
			return nil
		}

		if !match {
			if user.RecordFailure(now, s.cfg.MaxFailedAttempts, s.cfg.LockoutDuration) {
				lockedID = user.ID
			}
			if err := tx.Users().Update(ctx, user); err != nil {
				return err
			}
			loginErr = ErrInvalidCredentials
			return nil
		}

		user.RecordSuccess(now)
		s.upgradeHash(user, password)
		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}

		result, err = s.issueTokens(ctx, tx, user, now)
		return err
	})
	if err != nil {
		s.metrics.LoginAttempt(ctx, observability.ResultError)
		return nil, classify("login", err)
	}

	if lockedID != "" {
		s.metrics.Lockout(ctx)
		s.logger.Warn("Account locked after repeated login failures",
			zap.String("user_id", lockedID),
			zap.Int("max_attempts", s.cfg.MaxFailedAttempts),
			zap.Duration("lockout", s.cfg.LockoutDuration),
		)
	}

	switch {
	case errors.Is(loginErr, ErrAccountLocked):
		s.metrics.LoginAttempt(ctx, observability.ResultLocked)
		return nil, loginErr
	case loginErr != nil:
		s.metrics.LoginAttempt(ctx, observability.ResultInvalidCredentials)
		return nil, loginErr
	}

	s.metrics.LoginAttempt(ctx, observability.ResultSuccess)
	return result, nil
}

// verifyPassword treats an unreadable stored hash as a mismatch.
func (s *authService) verifyPassword(user *domain.User, password string) bool {
	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("Stored password hash is unreadable",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func (s *authService) upgradeHash(user *domain.User, password string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	upgraded, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("Failed to upgrade password hash", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = upgraded
}

// RefreshToken exchanges a live refresh token for a new pair. The presented
// token is revoked in the same transaction that stores its successor.
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if refreshToken == "" {
		s.metrics.RefreshRotation(ctx, observability.ResultInvalidToken)
		return nil, ErrInvalidToken
	}

	now := s.now()
	tokenHash := utils.HashToken(refreshToken)

	var (
		result   *AuthResult
		reusedBy string
	)

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		stored, err := tx.RefreshTokens().GetByTokenHashForUpdate(ctx, tokenHash)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		if err != nil {
			return err
		}

		if stored.IsRevoked {
			reusedBy = stored.UserID
			return ErrInvalidToken
		}
		if !stored.IsActive(now) {
			return ErrInvalidToken
		}

		user, err := tx.Users().GetByID(ctx, stored.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		if err != nil {
			return err
		}

		stored.IsRevoked = true
		if err := tx.RefreshTokens().Update(ctx, stored); err != nil {
			return err
		}

		result, err = s.issueTokens(ctx, tx, user, now)
		return err
	})

	if reusedBy != "" {
		s.handleReuse(ctx, reusedBy)
	}

	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			if reusedBy == "" {
				s.metrics.RefreshRotation(ctx, observability.ResultInvalidToken)
			}
			return nil, err
		}
		s.metrics.RefreshRotation(ctx, observability.ResultError)
		return nil, classify("refresh token", err)
	}

	s.metrics.RefreshRotation(ctx, observability.ResultSuccess)
	return result, nil
}

// handleReuse records presentation of an already rotated token and, when
// configured, revokes every session of its owner.
func (s *authService) handleReuse(ctx context.Context, userID string) {
	s.metrics.RefreshRotation(ctx, observability.ResultReused)
	s.logger.Warn("Revoked refresh token presented", zap.String("user_id", userID))

	if !s.cfg.RevokeOnReuse {
		return
	}

	n, err := s.store.RefreshTokens().RevokeAllForUser(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to revoke sessions after token reuse",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("Revoked all sessions after token reuse",
		zap.String("user_id", userID),
		zap.Int64("revoked", n),
	)
}

// Logout deletes the presented refresh token if it belongs to userID.
// Unknown or foreign tokens are ignored.
func (s *authService) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stored, err := s.store.RefreshTokens().GetByTokenHash(ctx, utils.HashToken(refreshToken))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return classify("logout", err)
	}
	if stored.UserID != userID {
		return nil
	}

	if err := s.store.RefreshTokens().Delete(ctx, stored.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return classify("logout", err)
	}

	s.logger.Info("User logged out", zap.String("user_id", userID))
	return nil
}

// ForgotPassword issues a reset token for a known email and hands it to the
// notifier. Unknown emails succeed silently.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	email = utils.SanitizeEmail(email)
	if !utils.ValidateEmail(email) {
		return nil
	}

	user, err := s.store.Users().GetByEmail(opCtx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return classify("forgot password", err)
	}

	token, err := utils.GenerateResetToken()
	if err != nil {
		return err
	}

	now := s.now()
	reset := &domain.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: utils.HashToken(token),
		ExpiresAt: now.Add(s.cfg.ResetTokenExpiry),
		CreatedAt: now,
	}
	if err := s.store.PasswordResets().Create(opCtx, reset); err != nil {
		return classify("forgot password", err)
	}

	s.metrics.PasswordReset(ctx, observability.StageRequested)
	s.logger.Info("Password reset requested", zap.String("user_id", user.ID))

	// The sender applies its own delivery timeout.
	if err := s.notifier.SendResetLink(ctx, user.Email, token); err != nil {
		s.logger.Error("Failed to send password reset link",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}

	return nil
}

// ResetPassword consumes a reset token and replaces the password. The new
// hash, the consumed token, the cleared lockout and the revocation of all
// refresh tokens are committed together or not at all.
func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if token == "" {
		return ErrInvalidOrExpiredToken
	}

	now := s.now()
	tokenHash := utils.HashToken(token)

	reset, err := s.store.PasswordResets().GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.PasswordReset(ctx, observability.StageRejected)
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		return classify("reset password", err)
	}
	if !reset.IsUsable(now) {
		s.metrics.PasswordReset(ctx, observability.StageRejected)
		return ErrInvalidOrExpiredToken
	}

	if rule := utils.ValidatePassword(newPassword); rule != "" {
		return &WeakPasswordError{Rule: rule}
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var userID string
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		locked, err := tx.PasswordResets().GetByTokenHashForUpdate(ctx, tokenHash)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		if err != nil {
			return err
		}
		if !locked.IsUsable(now) {
			return ErrInvalidOrExpiredToken
		}

		user, err := tx.Users().GetByID(ctx, locked.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		if err != nil {
			return err
		}

		user.PasswordHash = passwordHash
		user.RecordSuccess(now)
		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}

		locked.MarkUsed(now)
		if err := tx.PasswordResets().Update(ctx, locked); err != nil {
			return err
		}

		if _, err := tx.RefreshTokens().RevokeAllForUser(ctx, user.ID); err != nil {
			return err
		}

		userID = user.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpiredToken) {
			s.metrics.PasswordReset(ctx, observability.StageRejected)
		}
		return classify("reset password", err)
	}

	s.metrics.PasswordReset(ctx, observability.StageCompleted)
	s.logger.Info("Password reset completed", zap.String("user_id", userID))
	return nil
}

// GetCurrentUser loads the profile of an authenticated user.
func (s *authService) GetCurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.Users().GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("get current user", err)
	}
	return user, nil
}

// ValidateToken validates an access token
func (s *authService) ValidateToken(_ context.Context, token string) (*domain.TokenClaims, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// PurgeExpired removes refresh and reset tokens past their expiry and
// returns how many rows were deleted.
func (s *authService) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()

	refreshed, err := s.store.RefreshTokens().DeleteExpired(ctx, now)
	if err != nil {
		return 0, classify("purge expired", err)
	}
	resets, err := s.store.PasswordResets().DeleteExpired(ctx, now)
	if err != nil {
		return refreshed, classify("purge expired", err)
	}
	return refreshed + resets, nil
}
