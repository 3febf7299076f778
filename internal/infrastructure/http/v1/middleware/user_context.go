package middleware

import (
	"github.com/gin-gonic/gin"

	"aqualist/internal/core/security"
)

// UserContext extracts user ID from gin context and adds it to request context.
//
// This middleware must run AFTER Auth (or OptionalAuth), which sets "user_id"
// in gin context. The user ID is then available to the domain layer via
// security.GetUserID(ctx).
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if exists {
			if uid, ok := userID.(string); ok && uid != "" {
				ctx := security.WithUserID(c.Request.Context(), uid)
				c.Request = c.Request.WithContext(ctx)
			}
		}
		c.Next()
	}
}
