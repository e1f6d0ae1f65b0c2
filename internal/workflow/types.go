// Package workflow implements the dependency-driven workflow engine:
// definitions of steps with dependencies and conditional branches, trigger
// matching, concurrent ready-step scheduling with per-step timeouts, and
// persisted execution snapshots.
package workflow

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrWorkflowNotFound is returned for operations on unknown definitions
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound is returned for operations on unknown executions
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrNotPaused is returned when resuming an execution that is not paused
	ErrNotPaused = errors.New("execution is not paused")
)

// StepTimeoutError records a step executor that exceeded its deadline
type StepTimeoutError struct {
	StepID    string
	Threshold time.Duration
	Elapsed   time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s (threshold %s)", e.StepID, e.Elapsed.Round(time.Millisecond), e.Threshold)
}

// Status is the lifecycle state of a workflow execution
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepStatus is the lifecycle state of one step within an execution
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// ActionType identifies which executor handles a step
type ActionType string

const (
	ActionAITool          ActionType = "ai_tool"
	ActionHumanTask       ActionType = "human_task"
	ActionCondition       ActionType = "condition"
	ActionDelay           ActionType = "delay"
	ActionNotification    ActionType = "notification"
	ActionDataUpdate      ActionType = "data_update"
	ActionWorkflowTrigger ActionType = "workflow_trigger"
)

// TriggerType identifies how a workflow gets started
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerEvent     TriggerType = "event"
	TriggerCondition TriggerType = "condition"
	TriggerWebhook   TriggerType = "webhook"
)

// Trigger describes one way a workflow definition can be started
type Trigger struct {
	ID     string         `json:"trigger_id"`
	Type   TriggerType    `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// StepCondition gates a step on the recorded outcome of a condition step
type StepCondition struct {
	Step   string `json:"step"`
	Result bool   `json:"result"`
}

// Step is one node of a workflow definition
type Step struct {
	ID             string          `json:"step_id"`
	Name           string          `json:"name"`
	ActionType     ActionType      `json:"action_type"`
	Config         map[string]any  `json:"config,omitempty"`
	Dependencies   []string        `json:"dependencies,omitempty"`
	Conditions     []StepCondition `json:"conditions,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
	MaxRetries     int             `json:"max_retries,omitempty"`
}

// Definition is a registered workflow
type Definition struct {
	ID          string         `json:"workflow_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Version     string         `json:"version"`
	Steps       []Step         `json:"steps"`
	Triggers    []Trigger      `json:"triggers,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by,omitempty"`
}

// step returns the step with the given id, or nil
func (d *Definition) step(id string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// Validate checks structural integrity: unique step ids, dependencies and
// condition references pointing at existing steps.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return errors.New("workflow requires an id")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", d.ID)
	}

	ids := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("workflow %s has a step without an id", d.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("workflow %s has duplicate step id %s", d.ID, s.ID)
		}
		ids[s.ID] = true
	}
	for _, s := range d.Steps {
		for _, dep := range s.Dependencies {
			if !ids[dep] {
				return fmt.Errorf("step %s depends on unknown step %s", s.ID, dep)
			}
		}
		for _, cond := range s.Conditions {
			if !ids[cond.Step] {
				return fmt.Errorf("step %s references unknown condition step %s", s.ID, cond.Step)
			}
		}
	}
	return nil
}

// Context carries the mutable data flowing through one execution
type Context struct {
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	Data        map[string]any `json:"data"`
	Variables   map[string]any `json:"variables"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// lookup resolves a substitution name, variables taking precedence over data
func (c *Context) lookup(name string) (any, bool) {
	if c.Variables != nil {
		if v, ok := c.Variables[name]; ok {
			return v, true
		}
	}
	if c.Data != nil {
		if v, ok := c.Data[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// StepResult records the outcome of one step
type StepResult struct {
	Status       StepStatus     `json:"status"`
	Success      bool           `json:"success"`
	Data         map[string]any `json:"data,omitempty"`
	ConditionMet *bool          `json:"condition_met,omitempty"`
	Error        string         `json:"error,omitempty"`
	Attempts     int            `json:"attempts,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// Snapshot is the persisted form of an execution, safe to marshal
type Snapshot struct {
	ID             string                 `json:"execution_id"`
	WorkflowID     string                 `json:"workflow_id"`
	Status         Status                 `json:"status"`
	Context        *Context               `json:"context"`
	CompletedSteps []string               `json:"completed_steps"`
	FailedSteps    []string               `json:"failed_steps"`
	SkippedSteps   []string               `json:"skipped_steps"`
	StepResults    map[string]*StepResult `json:"step_results"`
	TriggeredBy    string                 `json:"triggered_by,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// HumanTask is the descriptor handed to the external task tracker
type HumanTask struct {
	ExecutionID string         `json:"execution_id"`
	StepID      string         `json:"step_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Assignee    string         `json:"assignee,omitempty"`
	DueAt       *time.Time     `json:"due_at,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// ToolResult is what the AI-inference collaborator returns from a tool call
type ToolResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}
