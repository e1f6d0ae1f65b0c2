// tasks.go implements the default human-task collaborator. Production
// deployments point human_task steps at a real task system; this tracker logs
// the descriptor and returns a generated id so workflows can run without one.
package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/leadpilot/governance/internal/workflow"
)

// LogTaskTracker implements workflow.TaskTracker by logging created tasks
type LogTaskTracker struct{}

// CreateTask records the task and returns a generated task id
func (t *LogTaskTracker) CreateTask(ctx context.Context, task *workflow.HumanTask) (string, error) {
	taskID := uuid.New().String()
	slog.Info("Human task created",
		"task_id", taskID,
		"execution_id", task.ExecutionID,
		"step_id", task.StepID,
		"title", task.Title,
		"assignee", task.Assignee)
	return taskID, nil
}
