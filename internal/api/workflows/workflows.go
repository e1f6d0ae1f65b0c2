// Package workflows implements handlers for workflow definitions, triggers,
// and execution lifecycle management.
package workflows

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/leadpilot/governance/internal/middleware"
	"github.com/leadpilot/governance/internal/workflow"
)

// Handlers handles workflow API endpoints
type Handlers struct {
	engine *workflow.Engine
}

// NewHandlers creates a new workflow handlers instance
func NewHandlers(engine *workflow.Engine) *Handlers {
	return &Handlers{engine: engine}
}

// ============================================================================
// Definitions
// ============================================================================

// @Summary      List workflow definitions
// @Description  Returns all registered workflow definitions. Requires the execute_ai_tools or configure_ai_workflows permission.
// @Tags         Workflows
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   workflow.Definition
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/workflows [get]
// ListDefinitions returns all registered workflow definitions
// GET /api/v1/workflows
func (h *Handlers) ListDefinitions(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Definitions())
}

// @Summary      Get workflow definition
// @Description  Returns one workflow definition by id. Requires the execute_ai_tools or configure_ai_workflows permission.
// @Tags         Workflows
// @Security     Bearer
// @Produce      json
// @Param        workflow_id  path  string  true  "Workflow ID"
// @Success      200  {object}  workflow.Definition
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Workflow not found"
// @Router       /api/v1/workflows/{workflow_id} [get]
// GetDefinition returns one workflow definition
// GET /api/v1/workflows/:workflow_id
func (h *Handlers) GetDefinition(c *gin.Context) {
	def := h.engine.Definition(c.Param("workflow_id"))
	if def == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found"})
		return
	}

	c.JSON(http.StatusOK, def)
}

// RegisterDefinitionRequest is a workflow definition submitted for registration
// (the definition itself is the request body)

// @Summary      Register workflow definition
// @Description  Validates and registers a workflow definition. Step ids must be unique and dependencies must reference existing steps. Requires the configure_ai_workflows permission.
// @Tags         Workflows
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  workflow.Definition  true  "Workflow definition"
// @Success      201  {object}  workflow.Definition
// @Failure      400  {object}  map[string]interface{}  "Invalid definition"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/workflows [post]
// RegisterDefinition validates and registers a workflow definition
// POST /api/v1/workflows
func (h *Handlers) RegisterDefinition(c *gin.Context) {
	var def workflow.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if def.CreatedBy == "" {
		def.CreatedBy = middleware.CallerID(c)
	}

	if err := h.engine.Register(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, &def)
}

// ============================================================================
// Triggers
// ============================================================================

// TriggerRequest represents a manual workflow trigger
type TriggerRequest struct {
	Data map[string]any `json:"data"`
}

// @Summary      Trigger workflow
// @Description  Starts an execution of a workflow with the given initial data. The execution runs asynchronously; the returned snapshot reflects its starting state. Requires the execute_workflows permission.
// @Tags         Workflows
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        workflow_id  path  string          true  "Workflow ID"
// @Param        body         body  TriggerRequest  true  "Initial data"
// @Success      202  {object}  workflow.Snapshot
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Workflow not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/workflows/{workflow_id}/trigger [post]
// TriggerWorkflow starts an execution
// POST /api/v1/workflows/:workflow_id/trigger
func (h *Handlers) TriggerWorkflow(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.engine.Trigger(c.Request.Context(), c.Param("workflow_id"), req.Data, middleware.CallerID(c))
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to trigger workflow"})
		return
	}

	c.JSON(http.StatusAccepted, snap)
}

// @Summary      Publish event
// @Description  Delivers an event to all workflows whose triggers match it, starting one execution per matching workflow. Requires the execute_workflows permission.
// @Tags         Workflows
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  map[string]interface{}  true  "Event payload; the type field is matched against event triggers"
// @Success      202  {array}   workflow.Snapshot
// @Failure      400  {object}  map[string]interface{}  "Invalid event"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/events [post]
// PublishEvent fans an event out to matching workflow triggers
// POST /api/v1/events
func (h *Handlers) PublishEvent(c *gin.Context) {
	var event map[string]any
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	started, err := h.engine.HandleEvent(c.Request.Context(), event)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to handle event"})
		return
	}

	c.JSON(http.StatusAccepted, started)
}

// ============================================================================
// Executions
// ============================================================================

// @Summary      List executions
// @Description  Returns execution snapshots newest-first, optionally filtered by workflow and status. Requires the execute_workflows permission.
// @Tags         Workflows
// @Security     Bearer
// @Produce      json
// @Param        workflow_id  query  string  false  "Filter by workflow"
// @Param        status       query  string  false  "Filter by status (active, paused, completed, failed, cancelled)"
// @Param        limit        query  int     false  "Maximum snapshots to return (default 100)"
// @Success      200  {array}   workflow.Snapshot
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/executions [get]
// ListExecutions returns execution snapshots
// GET /api/v1/executions
func (h *Handlers) ListExecutions(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	snaps, err := h.engine.ListExecutions(c.Request.Context(), c.Query("workflow_id"), workflow.Status(c.Query("status")), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list executions"})
		return
	}

	c.JSON(http.StatusOK, snaps)
}

// @Summary      Get execution
// @Description  Returns the current snapshot of one execution, including per-step results. Requires the execute_workflows permission.
// @Tags         Workflows
// @Security     Bearer
// @Produce      json
// @Param        execution_id  path  string  true  "Execution ID"
// @Success      200  {object}  workflow.Snapshot
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Execution not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/executions/{execution_id} [get]
// GetExecution returns one execution snapshot
// GET /api/v1/executions/:execution_id
func (h *Handlers) GetExecution(c *gin.Context) {
	snap, err := h.engine.GetExecution(c.Request.Context(), c.Param("execution_id"))
	if err != nil {
		if errors.Is(err, workflow.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get execution"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// @Summary      Cancel execution
// @Description  Cancels a running or paused execution. Cancelling an already-terminal execution is a no-op. Requires the execute_workflows permission.
// @Tags         Workflows
// @Security     Bearer
// @Produce      json
// @Param        execution_id  path  string  true  "Execution ID"
// @Success      200  {object}  workflow.Snapshot
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Execution not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/executions/{execution_id}/cancel [post]
// CancelExecution cancels a running or paused execution
// POST /api/v1/executions/:execution_id/cancel
func (h *Handlers) CancelExecution(c *gin.Context) {
	if err := h.engine.Cancel(c.Request.Context(), c.Param("execution_id")); err != nil {
		if errors.Is(err, workflow.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel execution"})
		return
	}

	snap, err := h.engine.GetExecution(c.Request.Context(), c.Param("execution_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get execution"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary      Resume execution
// @Description  Resumes a paused execution, re-planning from its persisted state. Requires the execute_workflows permission.
// @Tags         Workflows
// @Security     Bearer
// @Produce      json
// @Param        execution_id  path  string  true  "Execution ID"
// @Success      202  {object}  workflow.Snapshot
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Execution not found"
// @Failure      409  {object}  map[string]interface{}  "Execution is not paused"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/executions/{execution_id}/resume [post]
// ResumeExecution resumes a paused execution
// POST /api/v1/executions/:execution_id/resume
func (h *Handlers) ResumeExecution(c *gin.Context) {
	snap, err := h.engine.Resume(c.Request.Context(), c.Param("execution_id"))
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrExecutionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found"})
		case errors.Is(err, workflow.ErrNotPaused):
			c.JSON(http.StatusConflict, gin.H{"error": "Execution is not paused"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resume execution"})
		}
		return
	}

	c.JSON(http.StatusAccepted, snap)
}
