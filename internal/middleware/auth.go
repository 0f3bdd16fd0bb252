package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/utils"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
	ContextRole   = "role"
)

// AuthRequired is a middleware that checks for a valid JWT token
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// RoleRequired lets the request through only for one of the given roles.
func RoleRequired(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient permissions")
		c.Abort()
	}
}

// AdminRequired is a middleware that checks for admin role
func AdminRequired() gin.HandlerFunc {
	return RoleRequired(models.RoleAdmin)
}

// WriteAccess admits operators allowed to act on reviews; viewers are read-only.
func WriteAccess() gin.HandlerFunc {
	return RoleRequired(models.RoleAdmin, models.RoleReviewer)
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextUserID); exists {
		if v, ok := id.(uint); ok {
			return v
		}
	}
	return 0
}

// GetEmail gets the current user's email from context
func GetEmail(c *gin.Context) string {
	if email, exists := c.Get(ContextEmail); exists {
		if v, ok := email.(string); ok {
			return v
		}
	}
	return ""
}

// GetRole gets the current user role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		if v, ok := role.(string); ok {
			return v
		}
	}
	return ""
}
