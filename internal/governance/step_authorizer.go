// step_authorizer.go adapts the coordinator into the workflow engine's step
// gate so every ai_tool step runs through the same RBAC + policy + audit
// pipeline as a directly submitted action.
package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leadpilot/governance/internal/workflow"
)

// ErrStepDenied is returned when the governance pipeline refuses a workflow step
var ErrStepDenied = errors.New("step denied by governance")

// StepAuthorizer returns a workflow.AuthorizeFunc backed by the coordinator.
//
// Only ai_tool steps are governed here: they are the point where an AI agent
// acts on the outside world. Executions triggered by the system itself (event
// fan-out carries an "event:" identity, workflow chaining a "workflow:" one)
// pass through, because the action that started them was already authorized
// and there is no human principal to hold permissions. A requires_approval
// decision fails the step rather than blocking the execution on a human;
// the approval id is carried in the error for follow-up.
func StepAuthorizer(c *Coordinator) workflow.AuthorizeFunc {
	return func(ctx context.Context, step *workflow.Step, wctx *workflow.Context) error {
		if step.ActionType != workflow.ActionAITool {
			return nil
		}

		userID, _ := wctx.Metadata["triggered_by"].(string)
		if userID == "" || strings.Contains(userID, ":") {
			return nil
		}

		toolName, _ := step.Config["tool_name"].(string)
		extra := map[string]any{
			"workflow_id":  wctx.WorkflowID,
			"execution_id": wctx.ExecutionID,
			"step_id":      step.ID,
			"tool_name":    toolName,
		}

		decision, err := c.AuthorizeAction(ctx, userID, "execute", "ai_tool", toolName, extra)
		if err != nil {
			return fmt.Errorf("authorize step %s: %w", step.ID, err)
		}
		if !decision.Authorized {
			if decision.ApprovalID != "" {
				return fmt.Errorf("%w: %s (approval %s pending)", ErrStepDenied, decision.Reason, decision.ApprovalID)
			}
			return fmt.Errorf("%w: %s", ErrStepDenied, decision.Reason)
		}
		return nil
	}
}
