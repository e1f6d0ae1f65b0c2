// Package auth - permissions.go defines the closed permission enumeration used by
// RBAC and provides HasPermission, HasAnyPermission, and validation helpers.
package auth

import (
	"errors"
	"fmt"
)

// Permission represents a single grantable capability
type Permission string

const (
	// Data access permissions
	PermReadLeads          Permission = "read_leads"
	PermWriteLeads         Permission = "write_leads"
	PermDeleteLeads        Permission = "delete_leads"
	PermReadAccounts       Permission = "read_accounts"
	PermWriteAccounts      Permission = "write_accounts"
	PermDeleteAccounts     Permission = "delete_accounts"
	PermReadOpportunities  Permission = "read_opportunities"
	PermWriteOpportunities Permission = "write_opportunities"
	PermDeleteOpportunities Permission = "delete_opportunities"

	// AI agent permissions
	PermExecuteAITools       Permission = "execute_ai_tools"
	PermApproveAIDecisions   Permission = "approve_ai_decisions"
	PermConfigureAIWorkflows Permission = "configure_ai_workflows"
	PermAccessAIMemory       Permission = "access_ai_memory"

	// Communication permissions
	PermSendEmails       Permission = "send_emails"
	PermScheduleMeetings Permission = "schedule_meetings"
	PermMakeCalls        Permission = "make_calls"

	// Administrative permissions
	PermManageUsers     Permission = "manage_users"
	PermManageRoles     Permission = "manage_roles"
	PermViewAnalytics   Permission = "view_analytics"
	PermExportData      Permission = "export_data"
	PermConfigureSystem Permission = "configure_system"

	// Compliance permissions
	PermViewAuditLogs    Permission = "view_audit_logs"
	PermManageCompliance Permission = "manage_compliance"
	PermDataRetention    Permission = "data_retention"
)

// AllPermissions returns every permission in the closed enumeration.
// The set is not user-extensible; persisted permission strings outside this
// list are treated as invalid and skipped during permission resolution.
func AllPermissions() []Permission {
	return []Permission{
		PermReadLeads,
		PermWriteLeads,
		PermDeleteLeads,
		PermReadAccounts,
		PermWriteAccounts,
		PermDeleteAccounts,
		PermReadOpportunities,
		PermWriteOpportunities,
		PermDeleteOpportunities,
		PermExecuteAITools,
		PermApproveAIDecisions,
		PermConfigureAIWorkflows,
		PermAccessAIMemory,
		PermSendEmails,
		PermScheduleMeetings,
		PermMakeCalls,
		PermManageUsers,
		PermManageRoles,
		PermViewAnalytics,
		PermExportData,
		PermConfigureSystem,
		PermViewAuditLogs,
		PermManageCompliance,
		PermDataRetention,
	}
}

// ValidPermissions returns a lookup set of valid permission strings
func ValidPermissions() map[string]bool {
	valid := make(map[string]bool)
	for _, p := range AllPermissions() {
		valid[string(p)] = true
	}
	return valid
}

// ParsePermission converts a stored permission string back into a Permission,
// rejecting values outside the closed enumeration.
func ParsePermission(s string) (Permission, error) {
	if !ValidPermissions()[s] {
		return "", fmt.Errorf("invalid permission: %s", s)
	}
	return Permission(s), nil
}

// ValidatePermissions checks that all provided permission strings are valid
func ValidatePermissions(perms []string) error {
	valid := ValidPermissions()
	for _, p := range perms {
		if !valid[p] {
			return fmt.Errorf("invalid permission: %s", p)
		}
	}
	return nil
}

// HasPermission checks membership of a required permission in a permission set
func HasPermission(granted map[Permission]struct{}, required Permission) bool {
	_, ok := granted[required]
	return ok
}

// HasAnyPermission checks if at least one of the required permissions is granted
func HasAnyPermission(granted map[Permission]struct{}, required ...Permission) bool {
	for _, p := range required {
		if HasPermission(granted, p) {
			return true
		}
	}
	return false
}

// PermissionSet builds a membership set from a permission slice
func PermissionSet(perms []Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// ValidatePermissionString validates a single permission string
func ValidatePermissionString(p string) error {
	if !ValidPermissions()[p] {
		return errors.New("invalid permission")
	}
	return nil
}
