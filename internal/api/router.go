// Package api wires together all HTTP routes for the LeadPilot governance
// platform.
//
// Route grouping philosophy:
//   - Everything under /api/v1/ requires authentication. The platform is a
//     decision point for an AI-native sales system; there is no anonymous
//     surface beyond health probes and version discovery.
//   - Route-level RequirePermission gates are a first, cheap filter. Governed
//     actions submitted through /governance/authorize are additionally run
//     through the full RBAC + policy + audit pipeline inside the coordinator,
//     so the middleware gate is never the only line of defense.
package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/leadpilot/governance/internal/api/admin"
	govapi "github.com/leadpilot/governance/internal/api/governance"
	"github.com/leadpilot/governance/internal/api/workflows"
	"github.com/leadpilot/governance/internal/audit"
	"github.com/leadpilot/governance/internal/auth"
	"github.com/leadpilot/governance/internal/config"
	"github.com/leadpilot/governance/internal/db/repositories"
	"github.com/leadpilot/governance/internal/governance"
	"github.com/leadpilot/governance/internal/middleware"
	"github.com/leadpilot/governance/internal/policy"
	"github.com/leadpilot/governance/internal/rbac"
	"github.com/leadpilot/governance/internal/workflow"
)

// Dependencies holds the wired services the router exposes. Construction and
// lifecycle live in cmd/server; the router only registers routes.
type Dependencies struct {
	DB          *sql.DB
	Verifier    *auth.TokenVerifier
	Users       *repositories.RBACRepository
	RBAC        *rbac.Manager
	Policies    *policy.Engine
	Audit       *audit.Manager
	Coordinator *governance.Coordinator
	Workflows   *workflow.Engine

	// Redis backs distributed rate limiting; nil disables it
	Redis *redis.Client
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps *Dependencies) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(deps.DB))

	// Readiness check endpoint
	router.GET("/ready", readinessHandler(deps.DB, deps.Redis))

	// API version
	router.GET("/version", versionHandler())

	// Handlers
	govHandlers := govapi.NewHandlers(deps.Coordinator)
	rbacHandlers := admin.NewRBACHandlers(deps.RBAC, deps.Users)
	policyHandlers := admin.NewPolicyHandlers(deps.Policies)
	auditHandlers := admin.NewAuditHandlers(deps.Audit)
	workflowHandlers := workflows.NewHandlers(deps.Workflows)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(deps.Verifier, cfg.Auth.ServiceKeys, deps.Users))
	if cfg.Security.RateLimiting.Enabled && deps.Redis != nil {
		limiter := middleware.NewRateLimiter(deps.Redis, cfg.Security.RateLimiting.RequestsPerMinute)
		apiV1.Use(middleware.RateLimitMiddleware(limiter))
	}
	{
		// Governance decision point. Authorization for the submitted action is
		// decided inside the coordinator, not by a route gate: which permission
		// applies depends on the action itself.
		governanceGroup := apiV1.Group("/governance")
		{
			governanceGroup.POST("/authorize", govHandlers.AuthorizeAction)
			governanceGroup.GET("/approvals", govHandlers.ListPendingApprovals)
			governanceGroup.POST("/approvals/:approval_id/resolve", govHandlers.ResolveApproval)
		}

		// Role management
		rolesGroup := apiV1.Group("/admin/roles")
		rolesGroup.Use(middleware.RequirePermission(deps.RBAC, auth.PermManageRoles))
		{
			rolesGroup.GET("", rbacHandlers.ListRoles)
			rolesGroup.POST("", rbacHandlers.CreateRole)
		}

		// User management and role assignment
		usersGroup := apiV1.Group("/admin/users")
		usersGroup.Use(middleware.RequirePermission(deps.RBAC, auth.PermManageUsers))
		{
			usersGroup.POST("", rbacHandlers.CreateUser)
			usersGroup.GET("/:user_id", rbacHandlers.GetUser)
			usersGroup.DELETE("/:user_id", rbacHandlers.DeactivateUser)
			usersGroup.GET("/:user_id/roles", rbacHandlers.ListUserRoles)
			usersGroup.POST("/:user_id/roles", rbacHandlers.AssignRole)
			usersGroup.DELETE("/:user_id/roles/:role_id", rbacHandlers.RevokeRole)
			usersGroup.GET("/:user_id/permissions", rbacHandlers.ListUserPermissions)
		}

		// Policy rule configuration
		policiesGroup := apiV1.Group("/admin/policies")
		policiesGroup.Use(middleware.RequirePermission(deps.RBAC, auth.PermConfigureSystem))
		{
			policiesGroup.GET("", policyHandlers.ListRules)
			policiesGroup.POST("", policyHandlers.AddRule)
		}

		// Audit trail
		auditGroup := apiV1.Group("/admin/audit")
		auditGroup.Use(middleware.RequirePermission(deps.RBAC, auth.PermViewAuditLogs))
		{
			auditGroup.GET("", auditHandlers.GetAuditTrail)
			auditGroup.GET("/report", auditHandlers.GenerateComplianceReport)
		}

		// Workflow definitions
		workflowsGroup := apiV1.Group("/workflows")
		{
			workflowsGroup.GET("",
				middleware.RequireAnyPermission(deps.RBAC, auth.PermExecuteAITools, auth.PermConfigureAIWorkflows),
				workflowHandlers.ListDefinitions)
			workflowsGroup.GET("/:workflow_id",
				middleware.RequireAnyPermission(deps.RBAC, auth.PermExecuteAITools, auth.PermConfigureAIWorkflows),
				workflowHandlers.GetDefinition)
			workflowsGroup.POST("",
				middleware.RequirePermission(deps.RBAC, auth.PermConfigureAIWorkflows),
				workflowHandlers.RegisterDefinition)
			workflowsGroup.POST("/:workflow_id/trigger",
				middleware.RequirePermission(deps.RBAC, auth.PermExecuteAITools),
				workflowHandlers.TriggerWorkflow)
		}

		// Event ingestion fans out to event-triggered workflows
		apiV1.POST("/events",
			middleware.RequirePermission(deps.RBAC, auth.PermExecuteAITools),
			workflowHandlers.PublishEvent)

		// Execution lifecycle
		executionsGroup := apiV1.Group("/executions")
		executionsGroup.Use(middleware.RequirePermission(deps.RBAC, auth.PermExecuteAITools))
		{
			executionsGroup.GET("", workflowHandlers.ListExecutions)
			executionsGroup.GET("/:execution_id", workflowHandlers.GetExecution)
			executionsGroup.POST("/:execution_id/cancel", workflowHandlers.CancelExecution)
			executionsGroup.POST("/:execution_id/resume", workflowHandlers.ResumeExecution)
		}
	}

	return router
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database connectivity and, when configured, the Redis rate-limit backend.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks Redis when rate
// limiting is configured. The audit trail shares the database, so a passing
// database check also means governed actions can be recorded.
func readinessHandler(db *sql.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		// Check database connection
		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Redis degrades gracefully (the rate limiter fails open), so a Redis
		// outage is reported in checks but does not flip readiness.
		if rdb != nil {
			if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
				checks["redis"] = "unhealthy"
			} else {
				checks["redis"] = "healthy"
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging via slog. The output
// format (json or text) follows the global handler configured in
// telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
