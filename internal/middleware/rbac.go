package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-announcement-api/internal/models"
	appErrors "github.com/noah-isme/sma-announcement-api/pkg/errors"
	"github.com/noah-isme/sma-announcement-api/pkg/response"
)

// RBAC enforces role-based access control for routes. SUPERADMIN passes every check
// that admits ADMIN.
func RBAC(allowed ...models.UserRole) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed)+1)
	for _, role := range allowed {
		allowedRoles[role] = struct{}{}
		if role == models.RoleAdmin {
			allowedRoles[models.RoleSuperAdmin] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return RBAC(roles...)
}
