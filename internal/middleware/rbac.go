// rbac.go implements permission-based authorization middleware.
//
// Permissions are checked at request time against the RBAC manager rather than
// being embedded in the JWT. This is a deliberate design choice: when a user's
// role assignments change, the change takes effect within the permission cache
// TTL without needing to invalidate or reissue their token. Embedding
// permissions in the JWT would require token rotation on every role change,
// which is operationally expensive and error-prone.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadpilot/governance/internal/auth"
	"github.com/leadpilot/governance/internal/rbac"
)

// RequirePermission rejects requests whose authenticated caller lacks the
// given permission
func RequirePermission(mgr *rbac.Manager, permission auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := CallerID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		allowed, err := mgr.HasPermission(c.Request.Context(), userID, permission)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check permissions",
			})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required permission",
				"details": "Required permission: " + string(permission),
			})
			return
		}

		c.Next()
	}
}

// RequireAnyPermission rejects requests whose caller holds none of the given
// permissions
func RequireAnyPermission(mgr *rbac.Manager, permissions ...auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := CallerID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		granted, err := mgr.GetUserPermissions(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check permissions",
			})
			return
		}
		if !auth.HasAnyPermission(granted, permissions...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing required permission",
			})
			return
		}

		c.Next()
	}
}
