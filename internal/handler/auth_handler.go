package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/user-auth-service/internal/dto"
	"github.com/prperemyshlev/user-auth-service/internal/service"
	"go.uber.org/zap"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"

	forgotPasswordMessage = "If an account with that email exists, a password reset link has been sent"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService  service.AuthService
	logger       *zap.Logger
	now          func() time.Time
	secureCookie bool
}

type Option func(*AuthHandler)

// WithClock overrides the time source used for expires_in and Retry-After.
func WithClock(now func() time.Time) Option {
	return func(h *AuthHandler) { h.now = now }
}

// WithInsecureCookies drops the Secure flag from the refresh cookie, for
// plain-HTTP local runs.
func WithInsecureCookies() Option {
	return func(h *AuthHandler) { h.secureCookie = false }
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthService, logger *zap.Logger, opts ...Option) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &AuthHandler{
		authService:  authService,
		logger:       logger,
		now:          time.Now,
		secureCookie: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register handles user registration
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration request"
// @Success 201 {object} dto.UserResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewUserResponse(user))
}

// Login handles user login
// @Summary Login user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.AuthResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 423 {object} dto.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.respondTokens(c, result)
}

// Refresh handles token refresh. The token is read from the JSON body or,
// when absent, from the refresh cookie.
// @Summary Refresh tokens
// @Tags auth
// @Produce json
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	_ = c.ShouldBindJSON(&req)

	token := req.RefreshToken
	if token == "" {
		token, _ = c.Cookie(refreshCookieName)
	}

	result, err := h.authService.RefreshToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			h.clearRefreshCookie(c)
		}
		h.respondError(c, err)
		return
	}

	h.respondTokens(c, result)
}

// Logout handles user logout
// @Summary Logout user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.LogoutRequest
	_ = c.ShouldBindJSON(&req)

	token := req.RefreshToken
	if token == "" {
		token, _ = c.Cookie(refreshCookieName)
	}

	if err := h.authService.Logout(c.Request.Context(), userID, token); err != nil {
		h.respondError(c, err)
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Logged out successfully",
	})
}

// GetMe handles getting current user profile
// @Summary Get current user profile
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.UserResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.authService.GetCurrentUser(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewUserResponse(user))
}

// ForgotPassword starts a password reset. The response does not reveal
// whether the email is registered or whether delivery succeeded.
// @Summary Request a password reset link
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ForgotPasswordRequest true "Forgot password request"
// @Success 202 {object} dto.SuccessResponse
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.authService.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil && !errors.Is(err, service.ErrNotificationFailed) {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.SuccessResponse{
		Message: forgotPasswordMessage,
	})
}

// ResetPassword completes a password reset
// @Summary Reset password with a reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ResetPasswordRequest true "Reset password request"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Password has been reset",
	})
}

func (h *AuthHandler) respondTokens(c *gin.Context, result *service.AuthResult) {
	now := h.now()
	maxAge := int(result.Tokens.RefreshTokenExpiresAt.Sub(now).Seconds())
	c.SetCookie(refreshCookieName, result.Tokens.RefreshToken, maxAge, refreshCookiePath, "", h.secureCookie, true)

	c.JSON(http.StatusOK, dto.NewAuthResponse(result.User, result.Tokens, now))
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", h.secureCookie, true)
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return false
	}
	return true
}

func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(contextKeyUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: "User ID not found in context",
		})
		return "", false
	}
	return userID, true
}
