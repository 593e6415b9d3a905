package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyUserID is the gin context key for the authenticated user ID.
	ContextKeyUserID = "authUserID"
	// ContextKeyBusinessID is the gin context key for the caller's business.
	ContextKeyBusinessID = "authBusinessID"
	// ContextKeyEmail is the gin context key for the caller's email.
	ContextKeyEmail = "authEmail"
	// ContextKeyAdmin marks a request authenticated via the admin secret.
	ContextKeyAdmin = "authAdmin"
)

// Middleware extracts and validates a bearer session token if present.
// Sets identity keys in context; does not reject. Pair with RequireUser.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			if claims, err := m.Validate(token); err == nil {
				c.Set(ContextKeyUserID, claims.UserID)
				c.Set(ContextKeyBusinessID, claims.BusinessID)
				c.Set(ContextKeyEmail, claims.Email)
			}
		}
		c.Next()
	}
}

// RequireUser rejects requests without a valid session token.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyUserID); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "session token required. Include 'Authorization: Bearer <token>' header.",
			})
			return
		}
		c.Next()
	}
}

// AdminMiddleware authenticates requests carrying the admin secret header.
func AdminMiddleware(adminSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminSecret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "admin_disabled",
				"message": "admin API is not configured",
			})
			return
		}
		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid admin secret",
			})
			return
		}
		c.Set(ContextKeyAdmin, true)
		c.Next()
	}
}

// GetUserID returns the authenticated user's ID, or "" if unauthenticated.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// GetBusinessID returns the authenticated caller's business ID.
func GetBusinessID(c *gin.Context) string {
	return c.GetString(ContextKeyBusinessID)
}

// GetEmail returns the authenticated caller's email.
func GetEmail(c *gin.Context) string {
	return c.GetString(ContextKeyEmail)
}

// IsAdmin reports whether the request was authenticated via admin secret.
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ContextKeyAdmin)
}
