// Package governance implements handlers for the authorization decision point
// and the approval queue.
package governance

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadpilot/governance/internal/audit"
	gov "github.com/leadpilot/governance/internal/governance"
	"github.com/leadpilot/governance/internal/middleware"
)

// Handlers handles governance API endpoints
type Handlers struct {
	coordinator *gov.Coordinator
}

// NewHandlers creates a new governance handlers instance
func NewHandlers(coordinator *gov.Coordinator) *Handlers {
	return &Handlers{coordinator: coordinator}
}

// AuthorizeActionRequest represents a request to authorize an action
type AuthorizeActionRequest struct {
	Action       string         `json:"action" binding:"required"`
	ResourceType string         `json:"resource_type" binding:"required"`
	ResourceID   string         `json:"resource_id"`
	Context      map[string]any `json:"context"`
}

// @Summary      Authorize an action
// @Description  Runs the full governance pipeline (RBAC, policy evaluation, audit) for the authenticated caller and returns a structured decision. A requires_approval decision includes the approval_id to poll.
// @Tags         Governance
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  AuthorizeActionRequest  true  "Action to authorize"
// @Success      200  {object}  gov.Decision
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/governance/authorize [post]
// AuthorizeAction evaluates whether the caller may perform an action
// POST /api/v1/governance/authorize
func (h *Handlers) AuthorizeAction(c *gin.Context) {
	var req AuthorizeActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The acting identity always comes from the authenticated request, never
	// from the request body. A caller cannot ask on behalf of someone else.
	userID := middleware.CallerID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	decision, err := h.coordinator.AuthorizeAction(c.Request.Context(), userID, req.Action, req.ResourceType, req.ResourceID, req.Context)
	if err != nil {
		// The trail is fail-closed: if the audit write failed, the action was
		// refused even when RBAC and policy would have allowed it.
		if errors.Is(err, audit.ErrAuditWrite) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Audit trail unavailable, action refused"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to authorize action"})
		return
	}

	c.JSON(http.StatusOK, decision)
}
