// Package governance wires RBAC, policy evaluation, auditing, and the
// approval queue into a single authorization decision point. Every attempted
// action flows through Coordinator.AuthorizeAction; actions a policy holds
// for review are parked as approval requests and resolved exactly once.
package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadpilot/governance/internal/audit"
	"github.com/leadpilot/governance/internal/auth"
	"github.com/leadpilot/governance/internal/db/models"
	"github.com/leadpilot/governance/internal/policy"
	"github.com/leadpilot/governance/internal/rbac"
	"github.com/leadpilot/governance/internal/telemetry"
)

var (
	// ErrApprovalNotFound is returned when resolving an unknown approval id
	ErrApprovalNotFound = errors.New("approval request not found")

	// ErrAlreadyResolved is returned to the loser of a concurrent resolution
	// race; exactly one caller ever resolves a given approval
	ErrAlreadyResolved = errors.New("approval request already resolved")

	// ErrNotPermitted is returned when the approver lacks the
	// approve_ai_decisions permission
	ErrNotPermitted = errors.New("approver lacks approval permission")
)

// Denial reasons carried in Decision.Reason
const (
	ReasonAuthorized              = "authorized"
	ReasonInsufficientPermissions = "insufficient_permissions"
	ReasonPolicyViolation         = "policy_violation"
	ReasonRequiresApproval        = "requires_approval"
)

// ApprovalStore persists approval requests. Resolve must be a single atomic
// compare-and-set on status=pending so concurrent resolutions cannot both win.
type ApprovalStore interface {
	Create(ctx context.Context, req *models.ApprovalRequest) error
	Get(ctx context.Context, approvalID string) (*models.ApprovalRequest, error)
	ListPending(ctx context.Context) ([]*models.ApprovalRequest, error)

	// Resolve flips a pending request to the given terminal status.
	// resolved is false when the request was not pending (or absent).
	Resolve(ctx context.Context, approvalID, approverID string, status models.ApprovalStatus, comments string, resolvedAt time.Time) (resolved bool, err error)
}

// Decision is the structured outcome of an authorization attempt
type Decision struct {
	Authorized bool                     `json:"authorized"`
	Reason     string                   `json:"reason"`
	Message    string                   `json:"message,omitempty"`
	ApprovalID string                   `json:"approval_id,omitempty"`
	Violations []models.PolicyViolation `json:"policy_violations,omitempty"`
	Policy     *policy.Enforcement      `json:"policy_result,omitempty"`
}

// Coordinator is the authorization decision point
type Coordinator struct {
	rbac      *rbac.Manager
	policies  *policy.Engine
	audit     *audit.Manager
	approvals ApprovalStore
	now       func() time.Time
}

// NewCoordinator wires the collaborators together
func NewCoordinator(rbacMgr *rbac.Manager, policies *policy.Engine, auditMgr *audit.Manager, approvals ApprovalStore) *Coordinator {
	return &Coordinator{
		rbac:      rbacMgr,
		policies:  policies,
		audit:     auditMgr,
		approvals: approvals,
		now:       time.Now,
	}
}

// requiredPermission maps (action, resource type) pairs onto the permission
// the caller must hold. Pairs outside the table carry no permission
// requirement and proceed straight to policy evaluation.
func requiredPermission(action, resourceType string) (auth.Permission, bool) {
	switch resourceType {
	case "lead":
		switch action {
		case "read":
			return auth.PermReadLeads, true
		case "write":
			return auth.PermWriteLeads, true
		case "delete":
			return auth.PermDeleteLeads, true
		}
	case "account":
		switch action {
		case "read":
			return auth.PermReadAccounts, true
		case "write":
			return auth.PermWriteAccounts, true
		case "delete":
			return auth.PermDeleteAccounts, true
		}
	case "opportunity":
		switch action {
		case "read":
			return auth.PermReadOpportunities, true
		case "write":
			return auth.PermWriteOpportunities, true
		case "delete":
			return auth.PermDeleteOpportunities, true
		}
	case "ai_tool":
		if action == "execute" {
			return auth.PermExecuteAITools, true
		}
	case "email":
		if action == "send" {
			return auth.PermSendEmails, true
		}
	case "meeting":
		if action == "schedule" {
			return auth.PermScheduleMeetings, true
		}
	case "data":
		if action == "export" {
			return auth.PermExportData, true
		}
	}
	return "", false
}

// policyTypeFor maps an action onto the policy type governing it
func policyTypeFor(action, resourceType string) models.PolicyType {
	switch action {
	case "read", "write", "delete":
		return models.PolicyTypeDataAccess
	case "execute":
		return models.PolicyTypeAIBehavior
	case "send", "schedule":
		return models.PolicyTypeCommunication
	}
	if resourceType == "ai_tool" {
		return models.PolicyTypeAIBehavior
	}
	return models.PolicyTypeSecurity
}

// AuthorizeAction runs the full authorization pipeline for one attempted
// action: permission check, policy enforcement, audit, and approval
// queueing. The caller identity is always passed explicitly. Every attempt
// is audited; an audit failure aborts the authorization (fail closed).
func (c *Coordinator) AuthorizeAction(ctx context.Context, userID, action, resourceType, resourceID string, extra map[string]any) (*Decision, error) {
	actionCtx := &models.ActionContext{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Timestamp:    c.now().UTC(),
		Extra:        extra,
	}

	// RBAC gate first: permission denials short-circuit before any policy runs
	if perm, needed := requiredPermission(action, resourceType); needed {
		allowed, err := c.rbac.HasPermission(ctx, userID, perm)
		if err != nil {
			return nil, fmt.Errorf("authorize %s/%s: %w", action, resourceType, err)
		}
		if !allowed {
			_, auditErr := c.audit.LogEvent(ctx, audit.Event{
				Type:         models.EventPermissionDenied,
				UserID:       userID,
				Action:       action,
				ResourceType: resourceType,
				ResourceID:   resourceID,
				Details:      map[string]any{"required_permission": string(perm)},
			})
			if auditErr != nil {
				return nil, auditErr
			}
			telemetry.AuthorizationDecisions.WithLabelValues(ReasonInsufficientPermissions).Inc()
			return &Decision{
				Authorized: false,
				Reason:     ReasonInsufficientPermissions,
				Message:    fmt.Sprintf("Missing required permission: %s", perm),
			}, nil
		}
	}

	enforcement := c.policies.Enforce(policyTypeFor(action, resourceType), actionCtx)

	auditType := models.EventDataModification
	if strings.HasPrefix(action, "read") {
		auditType = models.EventDataAccess
	}
	auditDetails := actionCtx.Snapshot()
	auditDetails["policy_action"] = string(enforcement.Action)
	if _, err := c.audit.LogEvent(ctx, audit.Event{
		Type:         auditType,
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      auditDetails,
		Violations:   enforcement.Violations,
	}); err != nil {
		return nil, err
	}

	if !enforcement.Allowed {
		if enforcement.RequiresApproval {
			req := &models.ApprovalRequest{
				ApprovalID: uuid.New().String(),
				UserID:     userID,
				Action:     action,
				Context:    actionCtx.Snapshot(),
				Violations: enforcement.Violations,
				Status:     models.ApprovalPending,
				CreatedAt:  c.now().UTC(),
			}
			if err := c.approvals.Create(ctx, req); err != nil {
				return nil, fmt.Errorf("queue approval request: %w", err)
			}
			telemetry.ApprovalsPending.Inc()
			telemetry.AuthorizationDecisions.WithLabelValues(ReasonRequiresApproval).Inc()
			slog.Info("Action queued for approval",
				"approval_id", req.ApprovalID, "user_id", userID, "action", action)
			return &Decision{
				Authorized: false,
				Reason:     ReasonRequiresApproval,
				Message:    enforcement.Message,
				ApprovalID: req.ApprovalID,
				Violations: enforcement.Violations,
				Policy:     &enforcement,
			}, nil
		}

		telemetry.AuthorizationDecisions.WithLabelValues(ReasonPolicyViolation).Inc()
		return &Decision{
			Authorized: false,
			Reason:     ReasonPolicyViolation,
			Message:    enforcement.Message,
			Violations: enforcement.Violations,
			Policy:     &enforcement,
		}, nil
	}

	telemetry.AuthorizationDecisions.WithLabelValues(ReasonAuthorized).Inc()
	return &Decision{
		Authorized: true,
		Reason:     ReasonAuthorized,
		Violations: enforcement.Violations,
		Policy:     &enforcement,
	}, nil
}

// ApproveAction resolves a pending approval request exactly once. The
// approver must hold approve_ai_decisions; under a concurrent resolution
// race, one caller wins and the rest receive ErrAlreadyResolved.
func (c *Coordinator) ApproveAction(ctx context.Context, approvalID, approverID string, approved bool, comments string) (*models.ApprovalRequest, error) {
	canApprove, err := c.rbac.HasPermission(ctx, approverID, auth.PermApproveAIDecisions)
	if err != nil {
		return nil, fmt.Errorf("check approver permission: %w", err)
	}
	if !canApprove {
		return nil, fmt.Errorf("%w: %s", ErrNotPermitted, approverID)
	}

	status := models.ApprovalDenied
	auditAction := "deny_action"
	if approved {
		status = models.ApprovalApproved
		auditAction = "approve_action"
	}

	resolved, err := c.approvals.Resolve(ctx, approvalID, approverID, status, comments, c.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve approval %s: %w", approvalID, err)
	}
	if !resolved {
		existing, getErr := c.approvals.Get(ctx, approvalID)
		if getErr != nil {
			return nil, fmt.Errorf("resolve approval %s: %w", approvalID, getErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: %s", ErrApprovalNotFound, approvalID)
		}
		return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, approvalID)
	}
	telemetry.ApprovalsPending.Dec()

	req, err := c.approvals.Get(ctx, approvalID)
	if err != nil {
		return nil, fmt.Errorf("reload approval %s: %w", approvalID, err)
	}

	if _, err := c.audit.LogEvent(ctx, audit.Event{
		Type:   models.EventAIDecision,
		UserID: approverID,
		Action: auditAction,
		Details: map[string]any{
			"approval_id": approvalID,
			"approved":    approved,
			"comments":    comments,
		},
	}); err != nil {
		return nil, err
	}

	slog.Info("Approval resolved",
		"approval_id", approvalID, "approver_id", approverID, "approved", approved)
	return req, nil
}

// PendingApprovals lists unresolved approval requests. With a non-empty
// approverID, callers lacking the approval permission see an empty list
// rather than an error.
func (c *Coordinator) PendingApprovals(ctx context.Context, approverID string) ([]*models.ApprovalRequest, error) {
	if approverID != "" {
		canApprove, err := c.rbac.HasPermission(ctx, approverID, auth.PermApproveAIDecisions)
		if err != nil {
			return nil, fmt.Errorf("check approver permission: %w", err)
		}
		if !canApprove {
			return []*models.ApprovalRequest{}, nil
		}
	}
	return c.approvals.ListPending(ctx)
}
