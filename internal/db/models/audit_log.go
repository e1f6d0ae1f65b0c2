// Package models - audit_log.go defines the append-only AuditLog entry and the
// closed set of audit event types.
package models

import "time"

// AuditEventType classifies audit log entries
type AuditEventType string

const (
	EventUserLogin        AuditEventType = "user_login"
	EventUserLogout       AuditEventType = "user_logout"
	EventPermissionDenied AuditEventType = "permission_denied"
	EventDataAccess       AuditEventType = "data_access"
	EventDataModification AuditEventType = "data_modification"
	EventAIDecision       AuditEventType = "ai_decision"
	EventPolicyViolation  AuditEventType = "policy_violation"
	EventConfigChange     AuditEventType = "configuration_change"
	EventExportEvent      AuditEventType = "export_event"
	EventComplianceEvent  AuditEventType = "compliance_event"
)

// AuditLog represents one append-only audit record
type AuditLog struct {
	AuditID      string            `db:"audit_id" json:"audit_id"`
	EventType    AuditEventType    `db:"event_type" json:"event_type"`
	UserID       string            `db:"user_id" json:"user_id"`
	ResourceType *string           `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID   *string           `db:"resource_id" json:"resource_id,omitempty"`
	Action       string            `db:"action" json:"action"`
	Timestamp    time.Time         `db:"timestamp" json:"timestamp"`
	IPAddress    *string           `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent    *string           `db:"user_agent" json:"user_agent,omitempty"`
	Details      map[string]any    `db:"-" json:"details,omitempty"`
	Violations   []PolicyViolation `db:"-" json:"policy_violations,omitempty"`
}
