// audit.go implements handlers for querying the audit trail and generating
// compliance reports.
package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leadpilot/governance/internal/audit"
	"github.com/leadpilot/governance/internal/db/models"
)

// AuditHandlers handles audit trail API endpoints
type AuditHandlers struct {
	manager *audit.Manager
}

// NewAuditHandlers creates a new audit handlers instance
func NewAuditHandlers(manager *audit.Manager) *AuditHandlers {
	return &AuditHandlers{manager: manager}
}

// @Summary      Query audit trail
// @Description  Returns audit records newest-first, filtered by any combination of user, event type, resource, and time window. Requires the view_audit_logs permission.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        user_id        query  string  false  "Filter by acting user"
// @Param        event_type     query  string  false  "Filter by event type"
// @Param        resource_type  query  string  false  "Filter by resource type"
// @Param        resource_id    query  string  false  "Filter by resource id"
// @Param        start          query  string  false  "Inclusive window start (RFC3339)"
// @Param        end            query  string  false  "Exclusive window end (RFC3339)"
// @Param        limit          query  int     false  "Maximum records to return (default 100)"
// @Success      200  {array}   models.AuditLog
// @Failure      400  {object}  map[string]interface{}  "Invalid time filter"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/audit [get]
// GetAuditTrail queries the audit trail
// GET /api/v1/admin/audit
func (h *AuditHandlers) GetAuditTrail(c *gin.Context) {
	var filters audit.Filters

	if v := c.Query("user_id"); v != "" {
		filters.UserID = &v
	}
	if v := c.Query("event_type"); v != "" {
		et := models.AuditEventType(v)
		filters.EventType = &et
	}
	if v := c.Query("resource_type"); v != "" {
		filters.ResourceType = &v
	}
	if v := c.Query("resource_id"); v != "" {
		filters.ResourceID = &v
	}
	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start time, expected RFC3339"})
			return
		}
		filters.Start = &t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end time, expected RFC3339"})
			return
		}
		filters.End = &t
	}

	limit := audit.DefaultTrailLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.manager.GetAuditTrail(c.Request.Context(), filters, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query audit trail"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

// @Summary      Generate compliance report
// @Description  Aggregates audit activity over a time window: event breakdown, per-user activity, policy violations, and the most active users. Requires the view_audit_logs permission.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        start  query  string  true  "Inclusive window start (RFC3339)"
// @Param        end    query  string  true  "Exclusive window end (RFC3339)"
// @Success      200  {object}  audit.ComplianceReport
// @Failure      400  {object}  map[string]interface{}  "Invalid or missing time window"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/audit/report [get]
// GenerateComplianceReport aggregates audit activity over a time window
// GET /api/v1/admin/audit/report
func (h *AuditHandlers) GenerateComplianceReport(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start time, expected RFC3339"})
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end time, expected RFC3339"})
		return
	}
	if !end.After(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be after start"})
		return
	}

	report, err := h.manager.GenerateComplianceReport(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate compliance report"})
		return
	}

	c.JSON(http.StatusOK, report)
}
