// Package models - approval.go defines the ApprovalRequest model for actions
// held pending a human decision, resolved exactly once.
package models

import "time"

// ApprovalStatus is the lifecycle state of an approval request
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
)

// ApprovalRequest represents an action queued for human approval
type ApprovalRequest struct {
	ApprovalID string            `db:"approval_id" json:"approval_id"`
	UserID     string            `db:"user_id" json:"user_id"`
	Action     string            `db:"action" json:"action"`
	Context    map[string]any    `db:"-" json:"context"`
	Violations []PolicyViolation `db:"-" json:"policy_violations,omitempty"`
	Status     ApprovalStatus    `db:"status" json:"status"`
	ApproverID *string           `db:"approver_id" json:"approver_id,omitempty"`
	Comments   *string           `db:"comments" json:"comments,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time        `db:"resolved_at" json:"resolved_at,omitempty"`
}
