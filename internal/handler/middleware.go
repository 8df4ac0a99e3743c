package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/user-auth-service/internal/dto"
	"github.com/prperemyshlev/user-auth-service/internal/service"
)

// contextKeyUserID is where AuthMiddleware publishes the token's subject.
const contextKeyUserID = "user_id"

const bearerScheme = "Bearer"

// AuthMiddleware admits requests carrying a valid access token and exposes
// the token's subject to downstream handlers.
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, msg := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abortUnauthorized(c, msg)
			return
		}

		claims, err := authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(contextKeyUserID, claims.UserID)

		c.Next()
	}
}

// bearerToken returns the credential of a "Bearer <token>" header, or an
// empty token and the reason it was refused.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "Authorization header is required"
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, bearerScheme) || token == "" {
		return "", "Invalid authorization header format"
	}
	return token, ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", bearerScheme)
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
		Error:   "Unauthorized",
		Message: msg,
	})
}
