// Package workflow - executors.go implements the pluggable step executors.
// Executors are stateless: everything they need arrives via the step config
// (after ${var} substitution) and the execution context.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Executor runs one step. Implementations must respect ctx cancellation;
// the engine cancels it on per-step timeout.
type Executor interface {
	Execute(ctx context.Context, step *Step, wctx *Context) (*StepResult, error)
}

// ToolInvoker is the AI-inference collaborator behind ai_tool steps
type ToolInvoker interface {
	InvokeTool(ctx context.Context, toolName string, params map[string]any) (*ToolResult, error)
}

// TaskTracker is the external system human_task descriptors are handed to
type TaskTracker interface {
	CreateTask(ctx context.Context, task *HumanTask) (taskID string, err error)
}

// Notifier delivers notification step messages
type Notifier interface {
	Notify(ctx context.Context, channel, recipient, message string) error
}

// substituteParams walks a config map and resolves ${name} tokens against the
// execution context, variables taking precedence over data. A string that is
// exactly one token keeps the raw value's type; embedded tokens interpolate
// as text. Maps and slices are handled recursively.
func substituteParams(params map[string]any, wctx *Context) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = substituteValue(v, wctx)
	}
	return out
}

func substituteValue(v any, wctx *Context) any {
	switch value := v.(type) {
	case string:
		if m := substPattern.FindStringSubmatch(value); m != nil && m[0] == value {
			if resolved, ok := wctx.lookup(m[1]); ok {
				return resolved
			}
			return value
		}
		return substPattern.ReplaceAllStringFunc(value, func(token string) string {
			name := substPattern.FindStringSubmatch(token)[1]
			if resolved, ok := wctx.lookup(name); ok {
				return fmt.Sprintf("%v", resolved)
			}
			return token
		})
	case map[string]any:
		return substituteParams(value, wctx)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = substituteValue(item, wctx)
		}
		return out
	default:
		return v
	}
}

// AIToolExecutor delegates ai_tool steps to the AI-inference collaborator
type AIToolExecutor struct {
	Invoker ToolInvoker
}

func (e *AIToolExecutor) Execute(ctx context.Context, step *Step, wctx *Context) (*StepResult, error) {
	toolName, _ := step.Config["tool_name"].(string)
	if toolName == "" {
		return &StepResult{Success: false, Error: "ai_tool step missing tool_name"}, nil
	}

	params, _ := step.Config["parameters"].(map[string]any)
	resolved := substituteParams(params, wctx)

	result, err := e.Invoker.InvokeTool(ctx, toolName, resolved)
	if err != nil {
		return nil, fmt.Errorf("invoke tool %s: %w", toolName, err)
	}
	return &StepResult{
		Success: result.Success,
		Data:    result.Data,
		Error:   result.Error,
	}, nil
}

// HumanTaskExecutor hands a task descriptor to the tracker and returns
// immediately; the workflow does not block on human completion.
type HumanTaskExecutor struct {
	Tracker TaskTracker
}

func (e *HumanTaskExecutor) Execute(ctx context.Context, step *Step, wctx *Context) (*StepResult, error) {
	config := substituteParams(step.Config, wctx)

	task := &HumanTask{
		ExecutionID: wctx.ExecutionID,
		StepID:      step.ID,
		Title:       step.Name,
		Payload:     config,
	}
	if title, ok := config["title"].(string); ok && title != "" {
		task.Title = title
	}
	if desc, ok := config["description"].(string); ok {
		task.Description = desc
	}
	if assignee, ok := config["assignee"].(string); ok {
		task.Assignee = assignee
	}
	if hours, ok := toNumber(config["due_in_hours"]); ok && hours > 0 {
		due := time.Now().Add(time.Duration(hours * float64(time.Hour)))
		task.DueAt = &due
	}

	taskID, err := e.Tracker.CreateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("create human task for step %s: %w", step.ID, err)
	}
	return &StepResult{
		Success: true,
		Data:    map[string]any{"task_id": taskID, "status": "created"},
	}, nil
}

// ConditionExecutor evaluates a boolean expression against the execution
// context and records the branch outcome
type ConditionExecutor struct{}

func (e *ConditionExecutor) Execute(ctx context.Context, step *Step, wctx *Context) (*StepResult, error) {
	expr, _ := step.Config["condition"].(string)
	if expr == "" {
		return &StepResult{Success: false, Error: "condition step missing condition expression"}, nil
	}

	met, err := EvalCondition(expr, wctx)
	if err != nil {
		return &StepResult{
			Success: false,
			Error:   fmt.Sprintf("condition evaluation failed: %v", err),
		}, nil
	}
	return &StepResult{
		Success:      true,
		ConditionMet: &met,
		Data:         map[string]any{"condition_result": met},
	}, nil
}

// DefaultMaxDelay caps delay steps unless the engine is configured otherwise
const DefaultMaxDelay = 5 * time.Minute

// DelayExecutor pauses the execution for a configured, capped duration
type DelayExecutor struct {
	MaxDelay time.Duration
}

func (e *DelayExecutor) Execute(ctx context.Context, step *Step, wctx *Context) (*StepResult, error) {
	var delay time.Duration
	if seconds, ok := toNumber(step.Config["delay_seconds"]); ok {
		delay += time.Duration(seconds * float64(time.Second))
	}
	if minutes, ok := toNumber(step.Config["delay_minutes"]); ok {
		delay += time.Duration(minutes * float64(time.Minute))
	}
	if hours, ok := toNumber(step.Config["delay_hours"]); ok {
		delay += time.Duration(hours * float64(time.Hour))
	}

	maxDelay := e.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	capped := delay > maxDelay
	if capped {
		delay = maxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return &StepResult{
		Success: true,
		Data: map[string]any{
			"delayed_seconds": delay.Seconds(),
			"capped":          capped,
		},
	}, nil
}

// NotificationExecutor delivers a message through the configured notifier
type NotificationExecutor struct {
	Notifier Notifier
}

func (e *NotificationExecutor) Execute(ctx context.Context, step *Step, wctx *Context) (*StepResult, error) {
	config := substituteParams(step.Config, wctx)
	channel, _ := config["channel"].(string)
	recipient, _ := config["recipient"].(string)
	message, _ := config["message"].(string)
	if message == "" {
		return &StepResult{Success: false, Error: "notification step missing message"}, nil
	}
	if channel == "" {
		channel = "log"
	}

	if err := e.Notifier.Notify(ctx, channel, recipient, message); err != nil {
		return nil, fmt.Errorf("notify via %s: %w", channel, err)
	}
	return &StepResult{
		Success: true,
		Data:    map[string]any{"channel": channel, "recipient": recipient},
	}, nil
}

// SlogNotifier is the default Notifier: it writes notifications to the log
type SlogNotifier struct{}

func (SlogNotifier) Notify(ctx context.Context, channel, recipient, message string) error {
	slog.Info("Workflow notification", "channel", channel, "recipient", recipient, "message", message)
	return nil
}

// DataUpdateExecutor merges configured updates into the execution data.
// The returned Data is merged by the engine like any other step output.
type DataUpdateExecutor struct{}

func (e *DataUpdateExecutor) Execute(ctx context.Context, step *Step, wctx *Context) (*StepResult, error) {
	updates, ok := step.Config["updates"].(map[string]any)
	if !ok || len(updates) == 0 {
		return &StepResult{Success: false, Error: "data_update step missing updates"}, nil
	}
	return &StepResult{
		Success: true,
		Data:    substituteParams(updates, wctx),
	}, nil
}
