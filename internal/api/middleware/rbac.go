package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hirewire/portal/internal/models"
	"github.com/hirewire/portal/internal/rbac"
)

// RequireAdmin ensures the user is an admin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := c.Get("user")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
			return
		}

		isAdmin, err := rbac.IsAdmin(user.(*models.User).ID)
		if err != nil || !isAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Admin access required"})
			return
		}

		c.Next()
	}
}
