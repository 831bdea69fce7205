package utils

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxUserID   = "user_id"
	CtxUsername = "username"
	CtxRole     = "role"
)

// AuthMiddleware verifies the bearer JWT and sets user context.
func AuthMiddleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenParts := strings.Fields(c.GetHeader("Authorization"))
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
			FailWithStatus(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := issuer.VerifyToken(tokenParts[1])
		if err != nil {
			FailWithStatus(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Set(CtxUsername, claims.Username)
		c.Set(CtxUserID, claims.UserId)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

// AdminMiddleware rejects tokens without the admin role. Services check
// the stored role again.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxRole) != "admin" {
			FailWithStatus(c, http.StatusForbidden, "admin only")
			return
		}
		c.Next()
	}
}

// CurrentUserID returns the authenticated user id.
func CurrentUserID(c *gin.Context) uint64 {
	return c.GetUint64(CtxUserID)
}
