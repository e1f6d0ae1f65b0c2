// Package workflow - engine.go schedules executions: dependency-driven ready
// sets, conditional branch skipping, concurrent step execution with per-step
// timeouts and bounded retries, and snapshot persistence.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadpilot/governance/internal/safego"
	"github.com/leadpilot/governance/internal/telemetry"
)

// ExecutionStore persists execution snapshots so in-flight work survives a
// restart. The engine treats its in-memory state as authoritative and writes
// through on every state change.
type ExecutionStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Get(ctx context.Context, executionID string) (*Snapshot, error)
	List(ctx context.Context, workflowID string, status Status, limit int) ([]*Snapshot, error)
}

// AuthorizeFunc gates each step before its executor runs. A non-nil error
// fails the step without retries.
type AuthorizeFunc func(ctx context.Context, step *Step, wctx *Context) error

// Reviser is a hook point invoked after every completed wave with the ids of
// the steps still outstanding. Implementations may inspect the snapshot;
// the engine takes no action on their behalf.
type Reviser interface {
	ReviseRemaining(ctx context.Context, snap *Snapshot, remaining []string)
}

// Execution is the live state of one workflow run. All mutation happens
// under its own mutex; nothing here takes the engine lock.
type Execution struct {
	mu          sync.Mutex
	id          string
	workflowID  string
	status      Status
	wctx        *Context
	completed   map[string]bool
	failed      map[string]bool
	skipped     map[string]bool
	results     map[string]*StepResult
	triggeredBy string
	startedAt   time.Time
	completedAt *time.Time
	errMsg      string
	cancel      context.CancelFunc
}

// Status returns the current execution status
func (ex *Execution) Status() Status {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.status
}

// Snapshot returns a marshal-safe copy of the execution state
func (ex *Execution) Snapshot() *Snapshot {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.snapshotLocked()
}

func (ex *Execution) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		ID:             ex.id,
		WorkflowID:     ex.workflowID,
		Status:         ex.status,
		Context:        ex.contextCopyLocked(),
		CompletedSteps: sortedKeys(ex.completed),
		FailedSteps:    sortedKeys(ex.failed),
		SkippedSteps:   sortedKeys(ex.skipped),
		StepResults:    make(map[string]*StepResult, len(ex.results)),
		TriggeredBy:    ex.triggeredBy,
		StartedAt:      ex.startedAt,
		Error:          ex.errMsg,
	}
	for id, res := range ex.results {
		r := *res
		snap.StepResults[id] = &r
	}
	if ex.completedAt != nil {
		t := *ex.completedAt
		snap.CompletedAt = &t
	}
	return snap
}

// contextCopyLocked shallow-copies the context maps so executors and callers
// never share live map references with the engine
func (ex *Execution) contextCopyLocked() *Context {
	c := &Context{
		WorkflowID:  ex.wctx.WorkflowID,
		ExecutionID: ex.wctx.ExecutionID,
		Data:        copyMap(ex.wctx.Data),
		Variables:   copyMap(ex.wctx.Variables),
		Metadata:    copyMap(ex.wctx.Metadata),
	}
	return c
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Config wires the engine's collaborators. All fields are optional except
// that ai_tool and human_task steps fail without an Invoker / Tracker.
type Config struct {
	Invoker    ToolInvoker
	Tracker    TaskTracker
	Notifier   Notifier
	Store      ExecutionStore
	Authorizer AuthorizeFunc
	Reviser    Reviser
	MaxDelay   time.Duration
}

// Engine registers workflow definitions and drives their executions
type Engine struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	executions  map[string]*Execution

	executors  map[ActionType]Executor
	store      ExecutionStore
	authorizer AuthorizeFunc
	reviser    Reviser
}

// NewEngine builds an engine with the default executor set
func NewEngine(cfg Config) *Engine {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = SlogNotifier{}
	}

	e := &Engine{
		definitions: make(map[string]*Definition),
		executions:  make(map[string]*Execution),
		executors:   make(map[ActionType]Executor),
		store:       cfg.Store,
		authorizer:  cfg.Authorizer,
		reviser:     cfg.Reviser,
	}

	e.executors[ActionCondition] = &ConditionExecutor{}
	e.executors[ActionDelay] = &DelayExecutor{MaxDelay: cfg.MaxDelay}
	e.executors[ActionNotification] = &NotificationExecutor{Notifier: notifier}
	e.executors[ActionDataUpdate] = &DataUpdateExecutor{}
	e.executors[ActionWorkflowTrigger] = &workflowTriggerExecutor{engine: e}
	if cfg.Invoker != nil {
		e.executors[ActionAITool] = &AIToolExecutor{Invoker: cfg.Invoker}
	}
	if cfg.Tracker != nil {
		e.executors[ActionHumanTask] = &HumanTaskExecutor{Tracker: cfg.Tracker}
	}

	return e
}

// RegisterExecutor installs or replaces the executor for an action type
func (e *Engine) RegisterExecutor(actionType ActionType, executor Executor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executors[actionType] = executor
}

// Register validates and installs a workflow definition
func (e *Engine) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("register workflow: %w", err)
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.definitions[def.ID] = def
	slog.Info("Workflow registered", "workflow_id", def.ID, "version", def.Version, "steps", len(def.Steps))
	return nil
}

// Definition returns a registered workflow, or nil
func (e *Engine) Definition(workflowID string) *Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.definitions[workflowID]
}

// Definitions lists all registered workflows sorted by id
func (e *Engine) Definitions() []*Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Definition, 0, len(e.definitions))
	for _, def := range e.definitions {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Trigger starts a new execution of a workflow. The run itself happens on a
// background goroutine; the returned snapshot reflects the initial state.
func (e *Engine) Trigger(ctx context.Context, workflowID string, data map[string]any, triggeredBy string) (*Snapshot, error) {
	e.mu.RLock()
	def := e.definitions[workflowID]
	e.mu.RUnlock()
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}

	executionID := uuid.New().String()
	runCtx, cancel := context.WithCancel(context.Background())
	exec := &Execution{
		id:         executionID,
		workflowID: workflowID,
		status:     StatusActive,
		wctx: &Context{
			WorkflowID:  workflowID,
			ExecutionID: executionID,
			Data:      copyMap(data),
			Variables: copyMap(def.Variables),
			// The triggering identity rides in metadata so step authorizers
			// can attribute every step to an explicit caller
			Metadata: map[string]any{"triggered_by": triggeredBy},
		},
		completed:   make(map[string]bool),
		failed:      make(map[string]bool),
		skipped:     make(map[string]bool),
		results:     make(map[string]*StepResult),
		triggeredBy: triggeredBy,
		startedAt:   time.Now().UTC(),
		cancel:      cancel,
	}

	e.mu.Lock()
	e.executions[executionID] = exec
	e.mu.Unlock()

	e.persist(ctx, exec)
	telemetry.WorkflowExecutionsActive.Inc()
	slog.Info("Workflow execution started",
		"workflow_id", workflowID, "execution_id", executionID, "triggered_by", triggeredBy)

	safego.Go(func() {
		defer cancel()
		e.run(runCtx, def, exec)
	})

	return exec.Snapshot(), nil
}

// HandleEvent matches an event against every registered workflow's triggers
// and starts one execution per matching definition
func (e *Engine) HandleEvent(ctx context.Context, event map[string]any) ([]*Snapshot, error) {
	e.mu.RLock()
	defs := make([]*Definition, 0, len(e.definitions))
	for _, def := range e.definitions {
		defs = append(defs, def)
	}
	e.mu.RUnlock()

	eventType, _ := event["type"].(string)
	var started []*Snapshot
	for _, def := range defs {
		for _, trigger := range def.Triggers {
			if !trigger.ShouldFire(event) {
				continue
			}
			snap, err := e.Trigger(ctx, def.ID, event, "event:"+eventType)
			if err != nil {
				return started, err
			}
			started = append(started, snap)
			break
		}
	}
	return started, nil
}

// GetExecution returns the snapshot for an execution, falling back to the
// store for executions from before the last restart
func (e *Engine) GetExecution(ctx context.Context, executionID string) (*Snapshot, error) {
	e.mu.RLock()
	exec := e.executions[executionID]
	e.mu.RUnlock()
	if exec != nil {
		return exec.Snapshot(), nil
	}
	if e.store != nil {
		snap, err := e.store.Get(ctx, executionID)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			return snap, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
}

// ListExecutions lists execution snapshots, filtered by workflow id and
// status when non-empty, newest first
func (e *Engine) ListExecutions(ctx context.Context, workflowID string, status Status, limit int) ([]*Snapshot, error) {
	if e.store != nil {
		return e.store.List(ctx, workflowID, status, limit)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Snapshot
	for _, exec := range e.executions {
		snap := exec.Snapshot()
		if workflowID != "" && snap.WorkflowID != workflowID {
			continue
		}
		if status != "" && snap.Status != status {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Cancel stops an active or paused execution. Terminal executions are left
// untouched and reported via ErrExecutionNotFound/no-op semantics.
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	e.mu.RLock()
	exec := e.executions[executionID]
	e.mu.RUnlock()
	if exec == nil {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	exec.mu.Lock()
	if exec.status.Terminal() {
		exec.mu.Unlock()
		return nil
	}
	wasActive := exec.status == StatusActive
	exec.status = StatusCancelled
	now := time.Now().UTC()
	exec.completedAt = &now
	cancel := exec.cancel
	exec.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !wasActive {
		// Paused executions have no goroutine to observe the cancellation
		telemetry.WorkflowExecutionsTotal.WithLabelValues(string(StatusCancelled)).Inc()
	}
	e.persist(ctx, exec)
	slog.Info("Workflow execution cancelled", "execution_id", executionID)
	return nil
}

// Resume restarts the scheduling loop of a paused execution, typically after
// an external system completed the work a step was waiting on and updated
// the execution data out of band
func (e *Engine) Resume(ctx context.Context, executionID string) (*Snapshot, error) {
	e.mu.RLock()
	exec := e.executions[executionID]
	e.mu.RUnlock()
	if exec == nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	exec.mu.Lock()
	if exec.status != StatusPaused {
		status := exec.status
		exec.mu.Unlock()
		return nil, fmt.Errorf("%w: execution %s is %s", ErrNotPaused, executionID, status)
	}
	exec.status = StatusActive
	runCtx, cancel := context.WithCancel(context.Background())
	exec.cancel = cancel
	exec.mu.Unlock()

	e.mu.RLock()
	def := e.definitions[exec.workflowID]
	e.mu.RUnlock()
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, exec.workflowID)
	}

	telemetry.WorkflowExecutionsActive.Inc()
	safego.Go(func() {
		defer cancel()
		e.run(runCtx, def, exec)
	})
	return exec.Snapshot(), nil
}

// run drives one execution to a terminal or paused state
func (e *Engine) run(ctx context.Context, def *Definition, exec *Execution) {
	defer telemetry.WorkflowExecutionsActive.Dec()

	for {
		if exec.Status() != StatusActive {
			break
		}

		ready, toSkip, remaining := e.plan(def, exec)

		for _, step := range toSkip {
			exec.markSkipped(step)
			telemetry.WorkflowStepsTotal.WithLabelValues(string(def.step(step).ActionType), string(StepSkipped)).Inc()
			slog.Debug("Workflow step skipped", "execution_id", exec.id, "step_id", step)
		}
		remaining -= len(toSkip)

		if remaining == 0 {
			exec.finish(StatusCompleted, "")
			break
		}
		if len(ready) == 0 {
			exec.setPaused()
			slog.Info("Workflow execution paused: no runnable steps",
				"execution_id", exec.id, "remaining", remaining)
			break
		}

		var wg sync.WaitGroup
		for _, step := range ready {
			step := step
			wg.Add(1)
			safego.Go(func() {
				defer wg.Done()
				e.runStep(ctx, exec, step)
			})
		}
		wg.Wait()

		exec.mu.Lock()
		anyFailed := len(exec.failed) > 0
		exec.mu.Unlock()
		if anyFailed && exec.Status() == StatusActive {
			exec.finish(StatusFailed, "one or more steps failed")
			break
		}

		if e.reviser != nil {
			if ids := e.remainingIDs(def, exec); len(ids) > 0 {
				e.reviser.ReviseRemaining(ctx, exec.Snapshot(), ids)
			}
		}

		e.persist(ctx, exec)
	}

	e.persist(context.Background(), exec)

	final := exec.Status()
	if final.Terminal() {
		telemetry.WorkflowExecutionsTotal.WithLabelValues(string(final)).Inc()
		slog.Info("Workflow execution finished",
			"execution_id", exec.id, "workflow_id", exec.workflowID, "status", final)
	}
}

// plan computes, under the execution lock, the steps ready to run, the steps
// to skip (unmet branch conditions or unreachable via skipped dependencies),
// and how many steps remain unresolved.
func (e *Engine) plan(def *Definition, exec *Execution) (ready []*Step, toSkip []string, remaining int) {
	exec.mu.Lock()
	defer exec.mu.Unlock()

	resolved := func(id string) bool {
		return exec.completed[id] || exec.failed[id] || exec.skipped[id]
	}
	skipSet := make(map[string]bool)

	// Skips cascade: a step behind a skipped dependency can never run
	for changed := true; changed; {
		changed = false
	steps:
		for i := range def.Steps {
			step := &def.Steps[i]
			if resolved(step.ID) || skipSet[step.ID] {
				continue
			}
			for _, dep := range step.Dependencies {
				if exec.skipped[dep] || skipSet[dep] {
					skipSet[step.ID] = true
					changed = true
					continue steps
				}
			}
			for _, cond := range step.Conditions {
				if exec.skipped[cond.Step] || skipSet[cond.Step] {
					skipSet[step.ID] = true
					changed = true
					continue steps
				}
				if res, ok := exec.results[cond.Step]; ok && exec.completed[cond.Step] {
					if res.ConditionMet == nil || *res.ConditionMet != cond.Result {
						skipSet[step.ID] = true
						changed = true
						continue steps
					}
				}
			}
		}
	}

	for i := range def.Steps {
		step := &def.Steps[i]
		if resolved(step.ID) {
			continue
		}
		remaining++
		if skipSet[step.ID] {
			toSkip = append(toSkip, step.ID)
			continue
		}

		runnable := true
		for _, dep := range step.Dependencies {
			if !exec.completed[dep] {
				runnable = false
				break
			}
		}
		if runnable {
			for _, cond := range step.Conditions {
				if !exec.completed[cond.Step] {
					runnable = false
					break
				}
			}
		}
		if runnable {
			ready = append(ready, step)
		}
	}
	return ready, toSkip, remaining
}

func (e *Engine) remainingIDs(def *Definition, exec *Execution) []string {
	exec.mu.Lock()
	defer exec.mu.Unlock()
	var ids []string
	for _, step := range def.Steps {
		if !exec.completed[step.ID] && !exec.failed[step.ID] && !exec.skipped[step.ID] {
			ids = append(ids, step.ID)
		}
	}
	return ids
}

// runStep executes one step with authorization, timeout, and retry handling
func (e *Engine) runStep(ctx context.Context, exec *Execution, step *Step) {
	wctx := func() *Context {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.contextCopyLocked()
	}()

	started := time.Now().UTC()

	if e.authorizer != nil {
		if err := e.authorizer(ctx, step, wctx); err != nil {
			// Authorization denials are deterministic: no retries
			exec.recordResult(step.ID, &StepResult{
				Status:     StepFailed,
				Success:    false,
				Error:      fmt.Sprintf("authorization denied: %v", err),
				Attempts:   1,
				StartedAt:  started,
				FinishedAt: time.Now().UTC(),
			})
			telemetry.WorkflowStepsTotal.WithLabelValues(string(step.ActionType), string(StepFailed)).Inc()
			return
		}
	}

	e.mu.RLock()
	executor := e.executors[step.ActionType]
	e.mu.RUnlock()
	if executor == nil {
		exec.recordResult(step.ID, &StepResult{
			Status:     StepFailed,
			Success:    false,
			Error:      fmt.Sprintf("no executor registered for action type %s", step.ActionType),
			Attempts:   1,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
		})
		telemetry.WorkflowStepsTotal.WithLabelValues(string(step.ActionType), string(StepFailed)).Inc()
		return
	}

	var result *StepResult
	attempts := 0
	for {
		attempts++
		res, err := e.executeOnce(ctx, executor, step, wctx)

		var timeoutErr *StepTimeoutError
		if errors.As(err, &timeoutErr) {
			// Timeouts abort immediately: the work was cancelled mid-flight
			// and is not safe to blindly re-run
			result = &StepResult{Status: StepFailed, Success: false, Error: timeoutErr.Error()}
			slog.Warn("Workflow step timed out",
				"execution_id", exec.id, "step_id", step.ID,
				"threshold", timeoutErr.Threshold, "elapsed", timeoutErr.Elapsed)
			break
		}
		if err == nil && res != nil && res.Success {
			result = res
			result.Status = StepCompleted
			break
		}

		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		} else if res != nil {
			errMsg = res.Error
		}
		if attempts > step.MaxRetries {
			result = &StepResult{Status: StepFailed, Success: false, Error: errMsg}
			if res != nil {
				result.Data = res.Data
			}
			break
		}
		slog.Warn("Workflow step failed, retrying",
			"execution_id", exec.id, "step_id", step.ID, "attempt", attempts, "error", errMsg)
	}

	result.Attempts = attempts
	result.StartedAt = started
	result.FinishedAt = time.Now().UTC()
	telemetry.WorkflowStepDuration.WithLabelValues(string(step.ActionType)).
		Observe(result.FinishedAt.Sub(started).Seconds())
	telemetry.WorkflowStepsTotal.WithLabelValues(string(step.ActionType), string(result.Status)).Inc()

	exec.recordResult(step.ID, result)
}

// executeOnce runs the executor a single time, enforcing the step timeout by
// cancelling the executor's context and abandoning the call
func (e *Engine) executeOnce(ctx context.Context, executor Executor, step *Step, wctx *Context) (*StepResult, error) {
	if step.TimeoutSeconds <= 0 {
		return executor.Execute(ctx, step, wctx)
	}

	threshold := time.Duration(step.TimeoutSeconds) * time.Second
	stepCtx, cancel := context.WithTimeout(ctx, threshold)
	defer cancel()

	type outcome struct {
		res *StepResult
		err error
	}
	done := make(chan outcome, 1)
	started := time.Now()
	safego.Go(func() {
		res, err := executor.Execute(stepCtx, step, wctx)
		done <- outcome{res, err}
	})

	select {
	case out := <-done:
		return out.res, out.err
	case <-stepCtx.Done():
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return nil, &StepTimeoutError{
				StepID:    step.ID,
				Threshold: threshold,
				Elapsed:   time.Since(started),
			}
		}
		return nil, stepCtx.Err()
	}
}

// persist writes the current snapshot through to the store, if configured
func (e *Engine) persist(ctx context.Context, exec *Execution) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, exec.Snapshot()); err != nil {
		slog.Error("Failed to persist execution snapshot",
			"execution_id", exec.id, "error", err)
	}
}

func (ex *Execution) markSkipped(stepID string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.skipped[stepID] = true
	ex.results[stepID] = &StepResult{Status: StepSkipped, Success: false}
}

func (ex *Execution) recordResult(stepID string, result *StepResult) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.results[stepID] = result
	switch result.Status {
	case StepCompleted:
		ex.completed[stepID] = true
		for k, v := range result.Data {
			ex.wctx.Data[k] = v
		}
	case StepFailed:
		ex.failed[stepID] = true
	}
}

func (ex *Execution) setPaused() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.status == StatusActive {
		ex.status = StatusPaused
	}
}

func (ex *Execution) finish(status Status, errMsg string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.status.Terminal() {
		return
	}
	ex.status = status
	ex.errMsg = errMsg
	now := time.Now().UTC()
	ex.completedAt = &now
}

// workflowTriggerExecutor chains another workflow from within a step
type workflowTriggerExecutor struct {
	engine *Engine
}

func (e *workflowTriggerExecutor) Execute(ctx context.Context, step *Step, wctx *Context) (*StepResult, error) {
	targetID, _ := step.Config["workflow_id"].(string)
	if targetID == "" {
		return &StepResult{Success: false, Error: "workflow_trigger step missing workflow_id"}, nil
	}
	data, _ := step.Config["data"].(map[string]any)

	snap, err := e.engine.Trigger(ctx, targetID, substituteParams(data, wctx), "workflow:"+wctx.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("trigger workflow %s: %w", targetID, err)
	}
	return &StepResult{
		Success: true,
		Data:    map[string]any{"triggered_execution_id": snap.ID},
	}, nil
}
