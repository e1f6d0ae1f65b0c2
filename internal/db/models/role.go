// Package models - role.go defines the Role and UserRole models for RBAC,
// along with the predefined system roles (admin, sales_manager, etc.).
package models

import (
	"time"

	"github.com/leadpilot/governance/internal/auth"
)

// Role represents a named set of permissions
type Role struct {
	ID          string    `db:"role_id" json:"role_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	IsSystem    bool      `db:"is_system" json:"is_system"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	// Joined fields (not in DB)
	Permissions []auth.Permission `db:"-" json:"permissions,omitempty"`
}

// UserRole represents a role assignment for a user
type UserRole struct {
	UserID     string    `db:"user_id" json:"user_id"`
	RoleID     string    `db:"role_id" json:"role_id"`
	AssignedBy string    `db:"assigned_by" json:"assigned_by"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
}

// PredefinedRoles returns the default system roles
func PredefinedRoles() []Role {
	adminDesc := "Full access to all platform features"
	managerDesc := "Team oversight: full pipeline access, AI approvals, analytics"
	repDesc := "Day-to-day selling: own pipeline, AI tools, outbound communication"
	viewerDesc := "Read-only access to pipeline data and analytics"

	return []Role{
		{
			ID:          "admin",
			Name:        "Administrator",
			Description: &adminDesc,
			IsSystem:    true,
			Permissions: auth.AllPermissions(),
		},
		{
			ID:          "sales_manager",
			Name:        "Sales Manager",
			Description: &managerDesc,
			IsSystem:    true,
			Permissions: []auth.Permission{
				auth.PermReadLeads, auth.PermWriteLeads,
				auth.PermReadAccounts, auth.PermWriteAccounts,
				auth.PermReadOpportunities, auth.PermWriteOpportunities,
				auth.PermExecuteAITools, auth.PermApproveAIDecisions,
				auth.PermConfigureAIWorkflows, auth.PermAccessAIMemory,
				auth.PermSendEmails, auth.PermScheduleMeetings, auth.PermMakeCalls,
				auth.PermViewAnalytics, auth.PermExportData,
			},
		},
		{
			ID:          "sales_rep",
			Name:        "Sales Representative",
			Description: &repDesc,
			IsSystem:    true,
			Permissions: []auth.Permission{
				auth.PermReadLeads, auth.PermWriteLeads,
				auth.PermReadAccounts, auth.PermWriteAccounts,
				auth.PermReadOpportunities, auth.PermWriteOpportunities,
				auth.PermExecuteAITools, auth.PermAccessAIMemory,
				auth.PermSendEmails, auth.PermScheduleMeetings, auth.PermMakeCalls,
			},
		},
		{
			ID:          "viewer",
			Name:        "Viewer",
			Description: &viewerDesc,
			IsSystem:    true,
			Permissions: []auth.Permission{
				auth.PermReadLeads, auth.PermReadAccounts,
				auth.PermReadOpportunities, auth.PermViewAnalytics,
			},
		},
	}
}
