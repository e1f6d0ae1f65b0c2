package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeExecStore is an in-memory ExecutionStore
type fakeExecStore struct {
	mu    sync.Mutex
	snaps map[string]*Snapshot
	saves int
}

func newFakeExecStore() *fakeExecStore {
	return &fakeExecStore{snaps: make(map[string]*Snapshot)}
}

func (s *fakeExecStore) Save(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.snaps[snap.ID] = snap
	return nil
}

func (s *fakeExecStore) Get(_ context.Context, executionID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[executionID], nil
}

func (s *fakeExecStore) List(_ context.Context, workflowID string, status Status, limit int) ([]*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Snapshot
	for _, snap := range s.snaps {
		if workflowID != "" && snap.WorkflowID != workflowID {
			continue
		}
		if status != "" && snap.Status != status {
			continue
		}
		out = append(out, snap)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// waitForStatus polls until the execution reaches the wanted status
func waitForStatus(t *testing.T, e *Engine, executionID string, want Status) *Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := e.GetExecution(context.Background(), executionID)
		if err == nil && snap.Status == want {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	snap, err := e.GetExecution(context.Background(), executionID)
	t.Fatalf("execution %s never reached %s (last: %+v, err: %v)", executionID, want, snap, err)
	return nil
}

func mustRegister(t *testing.T, e *Engine, def *Definition) {
	t.Helper()
	if err := e.Register(def); err != nil {
		t.Fatalf("Register(%s) error: %v", def.ID, err)
	}
}

// ---------------------------------------------------------------------------
// Trigger
// ---------------------------------------------------------------------------

func TestTrigger_UnknownWorkflow(t *testing.T) {
	e := NewEngine(Config{})
	if _, err := e.Trigger(context.Background(), "ghost", nil, "rep-1"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("Trigger error = %v, want ErrWorkflowNotFound", err)
	}
}

func TestTrigger_RunsDependencyChain(t *testing.T) {
	invoker := &fakeInvoker{results: map[string]*ToolResult{
		"enrich": {Success: true, Data: map[string]any{"company": "Acme"}},
		"score":  {Success: true, Data: map[string]any{"lead_score": float64(85)}},
	}}
	e := NewEngine(Config{Invoker: invoker})
	mustRegister(t, e, &Definition{
		ID:      "chain",
		Version: "1.0",
		Steps: []Step{
			{ID: "enrich", ActionType: ActionAITool, Config: map[string]any{"tool_name": "enrich"}},
			{ID: "score", ActionType: ActionAITool, Config: map[string]any{"tool_name": "score"},
				Dependencies: []string{"enrich"}},
			{ID: "record", ActionType: ActionDataUpdate,
				Config:       map[string]any{"updates": map[string]any{"done": true}},
				Dependencies: []string{"score"}},
		},
	})

	snap, err := e.Trigger(context.Background(), "chain", map[string]any{"lead_id": "l-1"}, "rep-1")
	if err != nil {
		t.Fatalf("Trigger error: %v", err)
	}
	if snap.Status != StatusActive {
		t.Errorf("initial status = %s, want active", snap.Status)
	}

	final := waitForStatus(t, e, snap.ID, StatusCompleted)
	if len(final.CompletedSteps) != 3 {
		t.Errorf("CompletedSteps = %v, want all three", final.CompletedSteps)
	}
	invoker.mu.Lock()
	order := append([]string(nil), invoker.calls...)
	invoker.mu.Unlock()
	if len(order) != 2 || order[0] != "enrich" || order[1] != "score" {
		t.Errorf("tool call order = %v, want enrich before score", order)
	}
	// Step outputs merge into the execution data
	if final.Context.Data["company"] != "Acme" || final.Context.Data["lead_score"] != float64(85) {
		t.Errorf("merged data = %v", final.Context.Data)
	}
}

func TestTrigger_SeedsTriggeredByMetadata(t *testing.T) {
	e := NewEngine(Config{})
	mustRegister(t, e, &Definition{
		ID: "wf", Version: "1.0",
		Steps: []Step{{ID: "a", ActionType: ActionDataUpdate,
			Config: map[string]any{"updates": map[string]any{"x": 1}}}},
	})

	snap, err := e.Trigger(context.Background(), "wf", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.TriggeredBy != "rep-1" {
		t.Errorf("TriggeredBy = %q, want rep-1", snap.TriggeredBy)
	}
	if snap.Context.Metadata["triggered_by"] != "rep-1" {
		t.Errorf("metadata triggered_by = %v, want rep-1", snap.Context.Metadata["triggered_by"])
	}
	waitForStatus(t, e, snap.ID, StatusCompleted)
}

// ---------------------------------------------------------------------------
// Conditional branching
// ---------------------------------------------------------------------------

func branchingDefinition() *Definition {
	return &Definition{
		ID:      "branching",
		Version: "1.0",
		Steps: []Step{
			{ID: "check", ActionType: ActionCondition,
				Config: map[string]any{"condition": "${lead_score} >= 70"}},
			{ID: "welcome", ActionType: ActionNotification,
				Config:       map[string]any{"message": "welcome"},
				Dependencies: []string{"check"},
				Conditions:   []StepCondition{{Step: "check", Result: true}}},
			{ID: "welcome_followup", ActionType: ActionDataUpdate,
				Config:       map[string]any{"updates": map[string]any{"welcomed": true}},
				Dependencies: []string{"welcome"}},
			{ID: "nurture", ActionType: ActionNotification,
				Config:       map[string]any{"message": "nurture"},
				Dependencies: []string{"check"},
				Conditions:   []StepCondition{{Step: "check", Result: false}}},
		},
	}
}

func TestBranching_TakenPath(t *testing.T) {
	notifier := &fakeNotifier{}
	e := NewEngine(Config{Notifier: notifier})
	mustRegister(t, e, branchingDefinition())

	snap, err := e.Trigger(context.Background(), "branching",
		map[string]any{"lead_score": float64(85)}, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	final := waitForStatus(t, e, snap.ID, StatusCompleted)

	if len(final.SkippedSteps) != 1 || final.SkippedSteps[0] != "nurture" {
		t.Errorf("SkippedSteps = %v, want [nurture]", final.SkippedSteps)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].message != "welcome" {
		t.Errorf("notifications = %v, want only welcome", notifier.sent)
	}
	if final.Context.Data["welcomed"] != true {
		t.Error("downstream step on the taken branch did not run")
	}
}

func TestBranching_SkipsCascade(t *testing.T) {
	notifier := &fakeNotifier{}
	e := NewEngine(Config{Notifier: notifier})
	mustRegister(t, e, branchingDefinition())

	snap, err := e.Trigger(context.Background(), "branching",
		map[string]any{"lead_score": float64(40)}, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	final := waitForStatus(t, e, snap.ID, StatusCompleted)

	// welcome is skipped for the unmet condition; welcome_followup can then
	// never run and must be skipped transitively
	want := map[string]bool{"welcome": true, "welcome_followup": true}
	if len(final.SkippedSteps) != 2 || !want[final.SkippedSteps[0]] || !want[final.SkippedSteps[1]] {
		t.Errorf("SkippedSteps = %v, want welcome and welcome_followup", final.SkippedSteps)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].message != "nurture" {
		t.Errorf("notifications = %v, want only nurture", notifier.sent)
	}
	if res := final.StepResults["welcome"]; res == nil || res.Status != StepSkipped {
		t.Errorf("welcome result = %+v, want skipped", res)
	}
}

// ---------------------------------------------------------------------------
// Failure, retries, timeouts
// ---------------------------------------------------------------------------

func TestStepFailure_FailsExecution(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("backend down")}
	e := NewEngine(Config{Invoker: invoker})
	mustRegister(t, e, &Definition{
		ID: "fragile", Version: "1.0",
		Steps: []Step{
			{ID: "call", ActionType: ActionAITool, Config: map[string]any{"tool_name": "enrich"}},
			{ID: "after", ActionType: ActionDataUpdate,
				Config:       map[string]any{"updates": map[string]any{"x": 1}},
				Dependencies: []string{"call"}},
		},
	})

	snap, err := e.Trigger(context.Background(), "fragile", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	final := waitForStatus(t, e, snap.ID, StatusFailed)

	if len(final.FailedSteps) != 1 || final.FailedSteps[0] != "call" {
		t.Errorf("FailedSteps = %v, want [call]", final.FailedSteps)
	}
	if final.Error == "" {
		t.Error("failed execution has no error message")
	}
	// The dependent step never ran
	if len(final.CompletedSteps) != 0 {
		t.Errorf("CompletedSteps = %v, want none", final.CompletedSteps)
	}
}

func TestStepRetries_SucceedsWithinBudget(t *testing.T) {
	invoker := &fakeInvoker{failuresLeft: 2}
	e := NewEngine(Config{Invoker: invoker})
	mustRegister(t, e, &Definition{
		ID: "retrying", Version: "1.0",
		Steps: []Step{{ID: "call", ActionType: ActionAITool,
			Config: map[string]any{"tool_name": "enrich"}, MaxRetries: 2}},
	})

	snap, err := e.Trigger(context.Background(), "retrying", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	final := waitForStatus(t, e, snap.ID, StatusCompleted)

	res := final.StepResults["call"]
	if res == nil || res.Attempts != 3 {
		t.Errorf("step result = %+v, want 3 attempts", res)
	}
	if invoker.callCount() != 3 {
		t.Errorf("invoker called %d times, want 3", invoker.callCount())
	}
}

func TestStepRetries_Exhausted(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("backend down")}
	e := NewEngine(Config{Invoker: invoker})
	mustRegister(t, e, &Definition{
		ID: "exhausted", Version: "1.0",
		Steps: []Step{{ID: "call", ActionType: ActionAITool,
			Config: map[string]any{"tool_name": "enrich"}, MaxRetries: 1}},
	})

	snap, err := e.Trigger(context.Background(), "exhausted", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	final := waitForStatus(t, e, snap.ID, StatusFailed)

	res := final.StepResults["call"]
	if res == nil || res.Attempts != 2 || res.Status != StepFailed {
		t.Errorf("step result = %+v, want 2 failed attempts", res)
	}
}

func TestAuthorizerDenial_NoRetries(t *testing.T) {
	invoker := &fakeInvoker{}
	denied := errors.New("caller lacks execute_ai_tools")
	e := NewEngine(Config{
		Invoker: invoker,
		Authorizer: func(_ context.Context, step *Step, _ *Context) error {
			if step.ActionType == ActionAITool {
				return denied
			}
			return nil
		},
	})
	mustRegister(t, e, &Definition{
		ID: "gated", Version: "1.0",
		Steps: []Step{{ID: "call", ActionType: ActionAITool,
			Config: map[string]any{"tool_name": "enrich"}, MaxRetries: 3}},
	})

	snap, err := e.Trigger(context.Background(), "gated", nil, "viewer-1")
	if err != nil {
		t.Fatal(err)
	}
	final := waitForStatus(t, e, snap.ID, StatusFailed)

	res := final.StepResults["call"]
	if res == nil || res.Attempts != 1 {
		t.Errorf("step result = %+v, want a single attempt", res)
	}
	if !strings.Contains(res.Error, "authorization denied") {
		t.Errorf("step error = %q, want authorization denial", res.Error)
	}
	if invoker.callCount() != 0 {
		t.Errorf("invoker called %d times for a denied step, want 0", invoker.callCount())
	}
}

// blockingExecutor never returns until its context is cancelled
type blockingExecutor struct{}

func (blockingExecutor) Execute(ctx context.Context, _ *Step, _ *Context) (*StepResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStepTimeout_AbortsWithoutRetry(t *testing.T) {
	e := NewEngine(Config{})
	e.RegisterExecutor(ActionAITool, blockingExecutor{})
	mustRegister(t, e, &Definition{
		ID: "slow", Version: "1.0",
		Steps: []Step{{ID: "call", ActionType: ActionAITool,
			Config: map[string]any{"tool_name": "enrich"}, TimeoutSeconds: 1, MaxRetries: 3}},
	})

	snap, err := e.Trigger(context.Background(), "slow", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	final := waitForStatus(t, e, snap.ID, StatusFailed)

	res := final.StepResults["call"]
	if res == nil || res.Status != StepFailed {
		t.Fatalf("step result = %+v, want failed", res)
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("step error = %q, want timeout", res.Error)
	}
	// Timed-out work is abandoned, never re-run
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
}

func TestUnregisteredActionType_FailsStep(t *testing.T) {
	// No Invoker configured, so ai_tool has no executor
	e := NewEngine(Config{})
	mustRegister(t, e, &Definition{
		ID: "orphan", Version: "1.0",
		Steps: []Step{{ID: "call", ActionType: ActionAITool,
			Config: map[string]any{"tool_name": "enrich"}}},
	})

	snap, err := e.Trigger(context.Background(), "orphan", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	final := waitForStatus(t, e, snap.ID, StatusFailed)
	if !strings.Contains(final.StepResults["call"].Error, "no executor registered") {
		t.Errorf("step error = %q", final.StepResults["call"].Error)
	}
}

// ---------------------------------------------------------------------------
// Pause, resume, cancel
// ---------------------------------------------------------------------------

// deadlockedDefinition has mutually dependent steps: structurally valid, but
// no step can ever become ready, so the execution pauses.
func deadlockedDefinition() *Definition {
	return &Definition{
		ID: "stuck", Version: "1.0",
		Steps: []Step{
			{ID: "a", ActionType: ActionDataUpdate,
				Config:       map[string]any{"updates": map[string]any{"x": 1}},
				Dependencies: []string{"b"}},
			{ID: "b", ActionType: ActionDataUpdate,
				Config:       map[string]any{"updates": map[string]any{"y": 2}},
				Dependencies: []string{"a"}},
		},
	}
}

func TestExecution_PausesWhenNothingRunnable(t *testing.T) {
	e := NewEngine(Config{})
	mustRegister(t, e, deadlockedDefinition())

	snap, err := e.Trigger(context.Background(), "stuck", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, e, snap.ID, StatusPaused)
}

func TestResume_PausedExecution(t *testing.T) {
	e := NewEngine(Config{})
	mustRegister(t, e, deadlockedDefinition())

	snap, err := e.Trigger(context.Background(), "stuck", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, e, snap.ID, StatusPaused)

	// Replace the definition with a runnable revision, then resume
	mustRegister(t, e, &Definition{
		ID: "stuck", Version: "1.1",
		Steps: []Step{
			{ID: "a", ActionType: ActionDataUpdate,
				Config: map[string]any{"updates": map[string]any{"x": 1}}},
			{ID: "b", ActionType: ActionDataUpdate,
				Config:       map[string]any{"updates": map[string]any{"y": 2}},
				Dependencies: []string{"a"}},
		},
	})
	resumed, err := e.Resume(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	if resumed.Status != StatusActive {
		t.Errorf("resumed status = %s, want active", resumed.Status)
	}
	waitForStatus(t, e, snap.ID, StatusCompleted)
}

func TestResume_NotPaused(t *testing.T) {
	e := NewEngine(Config{})
	mustRegister(t, e, &Definition{
		ID: "wf", Version: "1.0",
		Steps: []Step{{ID: "a", ActionType: ActionDataUpdate,
			Config: map[string]any{"updates": map[string]any{"x": 1}}}},
	})

	snap, err := e.Trigger(context.Background(), "wf", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, e, snap.ID, StatusCompleted)

	if _, err := e.Resume(context.Background(), snap.ID); !errors.Is(err, ErrNotPaused) {
		t.Errorf("Resume on completed execution = %v, want ErrNotPaused", err)
	}
	if _, err := e.Resume(context.Background(), "ghost"); !errors.Is(err, ErrExecutionNotFound) {
		t.Errorf("Resume on unknown execution = %v, want ErrExecutionNotFound", err)
	}
}

func TestCancel(t *testing.T) {
	e := NewEngine(Config{})
	mustRegister(t, e, deadlockedDefinition())

	snap, err := e.Trigger(context.Background(), "stuck", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, e, snap.ID, StatusPaused)

	if err := e.Cancel(context.Background(), snap.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	final := waitForStatus(t, e, snap.ID, StatusCancelled)
	if final.CompletedAt == nil {
		t.Error("cancelled execution has no completion time")
	}

	// Cancelling a terminal execution is a no-op
	if err := e.Cancel(context.Background(), snap.ID); err != nil {
		t.Errorf("repeat Cancel error: %v", err)
	}
	if got, _ := e.GetExecution(context.Background(), snap.ID); got.Status != StatusCancelled {
		t.Errorf("status after repeat cancel = %s", got.Status)
	}

	if err := e.Cancel(context.Background(), "ghost"); !errors.Is(err, ErrExecutionNotFound) {
		t.Errorf("Cancel on unknown execution = %v, want ErrExecutionNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func TestHandleEvent(t *testing.T) {
	e := NewEngine(Config{})
	mustRegister(t, e, &Definition{
		ID: "on_lead_created", Version: "1.0",
		Triggers: []Trigger{{ID: "t", Type: TriggerEvent,
			Config: map[string]any{"event_type": "lead.created"}}},
		Steps: []Step{{ID: "a", ActionType: ActionDataUpdate,
			Config: map[string]any{"updates": map[string]any{"handled": true}}}},
	})
	mustRegister(t, e, &Definition{
		ID: "on_stall", Version: "1.0",
		Triggers: []Trigger{{ID: "t", Type: TriggerCondition,
			Config: map[string]any{"condition": "${days_since_activity} >= 7"}}},
		Steps: []Step{{ID: "a", ActionType: ActionDataUpdate,
			Config: map[string]any{"updates": map[string]any{"handled": true}}}},
	})
	mustRegister(t, e, &Definition{
		ID: "manual_only", Version: "1.0",
		Triggers: []Trigger{{ID: "t", Type: TriggerManual}},
		Steps: []Step{{ID: "a", ActionType: ActionDataUpdate,
			Config: map[string]any{"updates": map[string]any{"handled": true}}}},
	})

	started, err := e.HandleEvent(context.Background(), map[string]any{
		"type": "lead.created", "lead_id": "l-1",
	})
	if err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}
	if len(started) != 1 || started[0].WorkflowID != "on_lead_created" {
		t.Fatalf("started = %v, want only on_lead_created", started)
	}
	if started[0].TriggeredBy != "event:lead.created" {
		t.Errorf("TriggeredBy = %q, want event:lead.created", started[0].TriggeredBy)
	}
	// The event payload becomes the execution data
	final := waitForStatus(t, e, started[0].ID, StatusCompleted)
	if final.Context.Data["lead_id"] != "l-1" {
		t.Errorf("execution data = %v, missing event payload", final.Context.Data)
	}

	started, err = e.HandleEvent(context.Background(), map[string]any{
		"type": "opportunity.checked", "days_since_activity": float64(10),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(started) != 1 || started[0].WorkflowID != "on_stall" {
		t.Errorf("started = %v, want only on_stall", started)
	}

	started, err = e.HandleEvent(context.Background(), map[string]any{"type": "account.updated"})
	if err != nil {
		t.Fatal(err)
	}
	if len(started) != 0 {
		t.Errorf("started %d executions for an unmatched event", len(started))
	}
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

func TestPersistence_WritesThroughToStore(t *testing.T) {
	store := newFakeExecStore()
	e := NewEngine(Config{Store: store})
	mustRegister(t, e, &Definition{
		ID: "wf", Version: "1.0",
		Steps: []Step{{ID: "a", ActionType: ActionDataUpdate,
			Config: map[string]any{"updates": map[string]any{"x": 1}}}},
	})

	snap, err := e.Trigger(context.Background(), "wf", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, e, snap.ID, StatusCompleted)

	store.mu.Lock()
	persisted := store.snaps[snap.ID]
	store.mu.Unlock()
	if persisted == nil || persisted.Status != StatusCompleted {
		t.Errorf("persisted snapshot = %+v, want completed", persisted)
	}
}

func TestGetExecution_FallsBackToStore(t *testing.T) {
	store := newFakeExecStore()
	store.snaps["old-1"] = &Snapshot{ID: "old-1", WorkflowID: "wf", Status: StatusCompleted}
	e := NewEngine(Config{Store: store})

	snap, err := e.GetExecution(context.Background(), "old-1")
	if err != nil {
		t.Fatalf("GetExecution error: %v", err)
	}
	if snap.ID != "old-1" || snap.Status != StatusCompleted {
		t.Errorf("snapshot = %+v", snap)
	}

	if _, err := e.GetExecution(context.Background(), "ghost"); !errors.Is(err, ErrExecutionNotFound) {
		t.Errorf("GetExecution(ghost) = %v, want ErrExecutionNotFound", err)
	}
}

func TestListExecutions_PrefersStore(t *testing.T) {
	store := newFakeExecStore()
	store.snaps["s-1"] = &Snapshot{ID: "s-1", WorkflowID: "wf", Status: StatusCompleted}
	store.snaps["s-2"] = &Snapshot{ID: "s-2", WorkflowID: "other", Status: StatusCompleted}
	e := NewEngine(Config{Store: store})

	snaps, err := e.ListExecutions(context.Background(), "wf", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].ID != "s-1" {
		t.Errorf("snapshots = %v, want only s-1", snaps)
	}
}

func TestListExecutions_InMemoryFilters(t *testing.T) {
	e := NewEngine(Config{})
	mustRegister(t, e, &Definition{
		ID: "wf", Version: "1.0",
		Steps: []Step{{ID: "a", ActionType: ActionDataUpdate,
			Config: map[string]any{"updates": map[string]any{"x": 1}}}},
	})
	mustRegister(t, e, deadlockedDefinition())

	done, err := e.Trigger(context.Background(), "wf", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	stuck, err := e.Trigger(context.Background(), "stuck", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, e, done.ID, StatusCompleted)
	waitForStatus(t, e, stuck.ID, StatusPaused)

	snaps, err := e.ListExecutions(context.Background(), "", StatusPaused, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].ID != stuck.ID {
		t.Errorf("paused executions = %v, want only the stuck one", snaps)
	}

	snaps, err = e.ListExecutions(context.Background(), "wf", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].ID != done.ID {
		t.Errorf("wf executions = %v", snaps)
	}
}

// ---------------------------------------------------------------------------
// Workflow chaining
// ---------------------------------------------------------------------------

func TestWorkflowTriggerStep_ChainsChildExecution(t *testing.T) {
	e := NewEngine(Config{})
	mustRegister(t, e, &Definition{
		ID: "child", Version: "1.0",
		Steps: []Step{{ID: "record", ActionType: ActionDataUpdate,
			Config: map[string]any{"updates": map[string]any{"child_ran": true}}}},
	})
	mustRegister(t, e, &Definition{
		ID: "parent", Version: "1.0",
		Steps: []Step{{ID: "spawn", ActionType: ActionWorkflowTrigger,
			Config: map[string]any{
				"workflow_id": "child",
				"data":        map[string]any{"handoff_id": "${lead_id}"},
			}}},
	})

	snap, err := e.Trigger(context.Background(), "parent",
		map[string]any{"lead_id": "l-1"}, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	final := waitForStatus(t, e, snap.ID, StatusCompleted)

	childID, _ := final.Context.Data["triggered_execution_id"].(string)
	if childID == "" {
		t.Fatalf("parent data = %v, missing triggered_execution_id", final.Context.Data)
	}
	childSnap := waitForStatus(t, e, childID, StatusCompleted)
	if childSnap.TriggeredBy != "workflow:"+snap.ID {
		t.Errorf("child TriggeredBy = %q, want workflow:%s", childSnap.TriggeredBy, snap.ID)
	}
	if childSnap.Context.Data["handoff_id"] != "l-1" {
		t.Errorf("child data = %v, substitution not applied", childSnap.Context.Data)
	}
}

func TestWorkflowTriggerStep_UnknownTarget(t *testing.T) {
	e := NewEngine(Config{})
	mustRegister(t, e, &Definition{
		ID: "parent", Version: "1.0",
		Steps: []Step{{ID: "spawn", ActionType: ActionWorkflowTrigger,
			Config: map[string]any{"workflow_id": "ghost"}}},
	})

	snap, err := e.Trigger(context.Background(), "parent", nil, "rep-1")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, e, snap.ID, StatusFailed)
}
