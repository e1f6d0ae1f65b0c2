// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, and request telemetry.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → RequirePermission → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth resolves the caller identity; RequirePermission reads from that context.
// Every governed action is additionally authorized and audited inside the
// governance coordinator, so a handler reached through this chain still cannot
// skip policy evaluation.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadpilot/governance/internal/auth"
	"github.com/leadpilot/governance/internal/config"
	"github.com/leadpilot/governance/internal/db/models"
)

const (
	// UserIDKey is the gin.Context key holding the authenticated caller's user id.
	// Handlers read this to build explicit action contexts; there is no ambient
	// "current user" anywhere below the HTTP layer.
	UserIDKey = "user_id"

	// AuthMethodKey is the gin.Context key holding how the caller authenticated
	// ("jwt" or "service_key").
	AuthMethodKey = "auth_method"
)

// UserLoader resolves a user id to a stored user record
type UserLoader interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// AuthMiddleware validates authentication (JWT or service key) and stores the
// resolved user id in the gin context.
func AuthMiddleware(verifier *auth.TokenVerifier, serviceKeys []config.ServiceKeyConfig, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		// JWT is attempted first because it is entirely stateless — a
		// cryptographic check against the signing secret with no bcrypt work.
		// Service key validation runs a bcrypt comparison per configured key,
		// so JWT is the lower-latency path for interactive sessions.
		if claims, err := verifier.Verify(token); err == nil {
			if !resolveUser(c, users, claims.UserID) {
				return
			}
			c.Set(AuthMethodKey, "jwt")
			c.Next()
			return
		}

		// Service keys are bcrypt-hashed machine credentials from configuration,
		// each mapped to the user identity it acts as. The raw key is never
		// stored anywhere.
		for _, key := range serviceKeys {
			if auth.ValidateServiceKey(token, key.Hash) {
				if !resolveUser(c, users, key.UserID) {
					return
				}
				c.Set(AuthMethodKey, "service_key")
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid credentials",
		})
	}
}

// resolveUser loads the user record, rejects unknown or deactivated users, and
// stores the identity in the gin context. Returns false when the request was
// aborted.
func resolveUser(c *gin.Context, users UserLoader, userID string) bool {
	user, err := users.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load user",
		})
		return false
	}
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "User not found",
		})
		return false
	}
	if !user.IsActive {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "User is deactivated",
		})
		return false
	}

	c.Set("user", user)
	c.Set(UserIDKey, user.ID)
	return true
}

// CallerID returns the authenticated user id from the gin context, or "" when
// the request is unauthenticated.
func CallerID(c *gin.Context) string {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
