// approvals.go implements handlers for the pending approval queue.
package governance

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadpilot/governance/internal/audit"
	gov "github.com/leadpilot/governance/internal/governance"
	"github.com/leadpilot/governance/internal/middleware"
)

// @Summary      List pending approvals
// @Description  Returns all unresolved approval requests, oldest first. Callers without the approve_ai_decisions permission receive an empty list rather than an error.
// @Tags         Governance
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.ApprovalRequest
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/governance/approvals [get]
// ListPendingApprovals returns the approval queue visible to the caller
// GET /api/v1/governance/approvals
func (h *Handlers) ListPendingApprovals(c *gin.Context) {
	approverID := middleware.CallerID(c)
	if approverID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	pending, err := h.coordinator.PendingApprovals(c.Request.Context(), approverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list pending approvals"})
		return
	}

	c.JSON(http.StatusOK, pending)
}

// ResolveApprovalRequest represents the request to resolve a pending approval
type ResolveApprovalRequest struct {
	Approved bool   `json:"approved"`
	Comments string `json:"comments"`
}

// @Summary      Resolve an approval request
// @Description  Approves or denies a pending approval request. Resolution is first-writer-wins; a request that was already resolved returns 409. Requires the approve_ai_decisions permission.
// @Tags         Governance
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        approval_id  path  string                  true  "Approval request ID"
// @Param        body         body  ResolveApprovalRequest  true  "Resolution"
// @Success      200  {object}  models.ApprovalRequest
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Missing approve_ai_decisions permission"
// @Failure      404  {object}  map[string]interface{}  "Approval request not found"
// @Failure      409  {object}  map[string]interface{}  "Approval request already resolved"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/governance/approvals/{approval_id}/resolve [post]
// ResolveApproval approves or denies a pending request
// POST /api/v1/governance/approvals/:approval_id/resolve
func (h *Handlers) ResolveApproval(c *gin.Context) {
	approverID := middleware.CallerID(c)
	if approverID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req ResolveApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resolved, err := h.coordinator.ApproveAction(c.Request.Context(), c.Param("approval_id"), approverID, req.Approved, req.Comments)
	if err != nil {
		switch {
		case errors.Is(err, gov.ErrNotPermitted):
			c.JSON(http.StatusForbidden, gin.H{"error": "Missing approve_ai_decisions permission"})
		case errors.Is(err, gov.ErrApprovalNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Approval request not found"})
		case errors.Is(err, gov.ErrAlreadyResolved):
			c.JSON(http.StatusConflict, gin.H{"error": "Approval request already resolved"})
		case errors.Is(err, audit.ErrAuditWrite):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Audit trail unavailable, resolution refused"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve approval request"})
		}
		return
	}

	c.JSON(http.StatusOK, resolved)
}
