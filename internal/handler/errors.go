package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/user-auth-service/internal/dto"
	"github.com/prperemyshlev/user-auth-service/internal/service"
	"go.uber.org/zap"
)

// respondError maps a service error to its HTTP status. Storage and
// unexpected errors are logged and answered without internal detail.
func (h *AuthHandler) respondError(c *gin.Context, err error) {
	var (
		weak   *service.WeakPasswordError
		locked *service.AccountLockedError
	)

	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
	case errors.As(err, &weak):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
			Details: gin.H{"rule": string(weak.Rule)},
		})
	case errors.Is(err, service.ErrDuplicateAccount):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "Conflict",
			Message: err.Error(),
		})
	case errors.As(err, &locked):
		c.Header("Retry-After", retryAfterSeconds(locked.RetryAfter(h.now())))
		c.JSON(http.StatusLocked, dto.ErrorResponse{
			Error:   "Locked",
			Message: service.ErrAccountLocked.Error(),
			Details: gin.H{"locked_until": locked.Until.UTC()},
		})
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: unwrapSentinel(err),
		})
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "Not found",
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrStorageUnavailable):
		h.logger.Error("Storage unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   "Service unavailable",
			Message: "Please try again later",
		})
	default:
		h.logger.Error("Unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: "Unexpected error",
		})
	}
}

// unwrapSentinel keeps validation detail out of authentication failures.
func unwrapSentinel(err error) string {
	if errors.Is(err, service.ErrInvalidCredentials) {
		return service.ErrInvalidCredentials.Error()
	}
	return service.ErrInvalidToken.Error()
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
