// Package admin implements handlers for role management, user administration,
// policy rule configuration, and the audit trail.
package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/leadpilot/governance/internal/auth"
	"github.com/leadpilot/governance/internal/db/models"
	"github.com/leadpilot/governance/internal/db/repositories"
	"github.com/leadpilot/governance/internal/middleware"
	"github.com/leadpilot/governance/internal/rbac"
)

// RBACHandlers handles role and user management API endpoints
type RBACHandlers struct {
	manager *rbac.Manager
	users   *repositories.RBACRepository
}

// NewRBACHandlers creates a new RBAC handlers instance
func NewRBACHandlers(manager *rbac.Manager, users *repositories.RBACRepository) *RBACHandlers {
	return &RBACHandlers{manager: manager, users: users}
}

// ============================================================================
// Roles
// ============================================================================

// @Summary      List roles
// @Description  Returns all defined roles with their permission sets. Requires the manage_users permission.
// @Tags         RBAC
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.Role
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/roles [get]
// ListRoles returns all defined roles
// GET /api/v1/admin/roles
func (h *RBACHandlers) ListRoles(c *gin.Context) {
	roles, err := h.manager.Roles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list roles"})
		return
	}

	c.JSON(http.StatusOK, roles)
}

// CreateRoleRequest represents the request to create a role
type CreateRoleRequest struct {
	ID          string   `json:"role_id" binding:"required"`
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions" binding:"required"`
}

// @Summary      Create role
// @Description  Creates a custom role with the given permission set. Permission names outside the closed permission enum are rejected. Requires the manage_users permission.
// @Tags         RBAC
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRoleRequest  true  "Role"
// @Success      201  {object}  models.Role
// @Failure      400  {object}  map[string]interface{}  "Invalid request or unknown permission"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/roles [post]
// CreateRole creates a custom role
// POST /api/v1/admin/roles
func (h *RBACHandlers) CreateRole(c *gin.Context) {
	var req CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := auth.ValidatePermissions(req.Permissions); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	perms := make([]auth.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, auth.Permission(p))
	}

	now := time.Now().UTC()
	role := &models.Role{
		ID:          req.ID,
		Name:        req.Name,
		Description: &req.Description,
		Permissions: perms,
		IsSystem:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.users.CreateRole(c.Request.Context(), role); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create role"})
		return
	}

	c.JSON(http.StatusCreated, role)
}

// ============================================================================
// Role assignments
// ============================================================================

// AssignRoleRequest represents the request to assign a role to a user
type AssignRoleRequest struct {
	RoleID string `json:"role_id" binding:"required"`
}

// @Summary      Assign role
// @Description  Assigns a role to a user. Assigning an already-held role is a no-op. The assignment records who granted it. Requires the manage_users permission.
// @Tags         RBAC
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        user_id  path  string             true  "User ID"
// @Param        body     body  AssignRoleRequest  true  "Role assignment"
// @Success      200  {object}  models.UserRole
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Role not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/users/{user_id}/roles [post]
// AssignRole assigns a role to a user
// POST /api/v1/admin/users/:user_id/roles
func (h *RBACHandlers) AssignRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assignment, err := h.manager.AssignRole(c.Request.Context(), c.Param("user_id"), req.RoleID, middleware.CallerID(c))
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Role not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign role"})
		return
	}

	c.JSON(http.StatusOK, assignment)
}

// @Summary      Revoke role
// @Description  Revokes a role from a user. Revoking an unassigned role is a no-op. Requires the manage_users permission.
// @Tags         RBAC
// @Security     Bearer
// @Produce      json
// @Param        user_id  path  string  true  "User ID"
// @Param        role_id  path  string  true  "Role ID"
// @Success      204  "Role revoked"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/users/{user_id}/roles/{role_id} [delete]
// RevokeRole revokes a role from a user
// DELETE /api/v1/admin/users/:user_id/roles/:role_id
func (h *RBACHandlers) RevokeRole(c *gin.Context) {
	if err := h.manager.RevokeRole(c.Request.Context(), c.Param("user_id"), c.Param("role_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke role"})
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary      List user roles
// @Description  Returns the roles currently assigned to a user. Requires the manage_users permission.
// @Tags         RBAC
// @Security     Bearer
// @Produce      json
// @Param        user_id  path  string  true  "User ID"
// @Success      200  {array}   models.Role
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/users/{user_id}/roles [get]
// ListUserRoles returns a user's assigned roles
// GET /api/v1/admin/users/:user_id/roles
func (h *RBACHandlers) ListUserRoles(c *gin.Context) {
	roles, err := h.manager.UserRoles(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list user roles"})
		return
	}

	c.JSON(http.StatusOK, roles)
}

// @Summary      List user permissions
// @Description  Returns the effective permission set for a user, aggregated across all assigned roles. Served from the permission cache when fresh. Requires the manage_users permission.
// @Tags         RBAC
// @Security     Bearer
// @Produce      json
// @Param        user_id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "user_id, permissions"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/users/{user_id}/permissions [get]
// ListUserPermissions returns a user's effective permissions
// GET /api/v1/admin/users/:user_id/permissions
func (h *RBACHandlers) ListUserPermissions(c *gin.Context) {
	userID := c.Param("user_id")
	granted, err := h.manager.GetUserPermissions(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve permissions"})
		return
	}

	perms := make([]string, 0, len(granted))
	for p := range granted {
		perms = append(perms, string(p))
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":     userID,
		"permissions": perms,
	})
}

// ============================================================================
// Users
// ============================================================================

// CreateUserRequest represents the request to create a user
type CreateUserRequest struct {
	Username   string  `json:"username" binding:"required"`
	Email      string  `json:"email" binding:"required,email"`
	FullName   string  `json:"full_name" binding:"required"`
	Department *string `json:"department"`
	ManagerID  *string `json:"manager_id"`
}

// @Summary      Create user
// @Description  Registers a user in the governance platform. Requires the manage_users permission.
// @Tags         RBAC
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUserRequest  true  "User"
// @Success      201  {object}  models.User
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/users [post]
// CreateUser registers a new user
// POST /api/v1/admin/users
func (h *RBACHandlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{
		ID:         uuid.New().String(),
		Username:   req.Username,
		Email:      req.Email,
		FullName:   req.FullName,
		Department: req.Department,
		ManagerID:  req.ManagerID,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

// @Summary      Get user
// @Description  Returns a user by id. Requires the manage_users permission.
// @Tags         RBAC
// @Security     Bearer
// @Produce      json
// @Param        user_id  path  string  true  "User ID"
// @Success      200  {object}  models.User
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/users/{user_id} [get]
// GetUser returns a single user
// GET /api/v1/admin/users/:user_id
func (h *RBACHandlers) GetUser(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// @Summary      Deactivate user
// @Description  Marks a user inactive. Deactivated users fail authentication on their next request; their audit history is retained. Requires the manage_users permission.
// @Tags         RBAC
// @Security     Bearer
// @Produce      json
// @Param        user_id  path  string  true  "User ID"
// @Success      204  "User deactivated"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/users/{user_id} [delete]
// DeactivateUser marks a user inactive
// DELETE /api/v1/admin/users/:user_id
func (h *RBACHandlers) DeactivateUser(c *gin.Context) {
	userID := c.Param("user_id")
	if err := h.users.DeactivateUser(c.Request.Context(), userID); err != nil {
		if errors.Is(err, rbac.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate user"})
		return
	}

	// Their cached permission set must not outlive the deactivation
	h.manager.Invalidate(userID)

	c.Status(http.StatusNoContent)
}
