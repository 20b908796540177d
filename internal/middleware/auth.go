package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rotacerta/ekspedisi/internal/apierr"
	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/models"
)

const (
	userKey    = "user"
	userIDKey  = "user_id"
	roleKey    = "role"
	tokenIDKey = "token_id"
)

// Authenticator resolves a raw bearer token to its user and token id.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.User, string, error)
}

type AuthMiddleware struct {
	log  *logger.Logger
	auth Authenticator
}

func NewAuthMiddleware(log *logger.Logger, auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), auth: auth}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "authentication credentials were not provided", "code": "not_authenticated"},
			})
			return
		}
		user, tokenID, err := am.auth.Authenticate(c.Request.Context(), raw)
		if err != nil {
			if apiErr, ok := apierr.As(err); ok {
				c.AbortWithStatusJSON(apiErr.Status, gin.H{
					"error": gin.H{"message": apiErr.Error(), "code": apiErr.Code},
				})
				return
			}
			am.log.Error("Token check failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{"message": "internal server error", "code": "internal_error"},
			})
			return
		}
		c.Set(userKey, user)
		c.Set(userIDKey, user.ID)
		c.Set(roleKey, string(user.Role))
		c.Set(tokenIDKey, tokenID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// CurrentUser returns the user RequireAuth attached, or nil on public routes.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func TokenID(c *gin.Context) string {
	return c.GetString(tokenIDKey)
}
