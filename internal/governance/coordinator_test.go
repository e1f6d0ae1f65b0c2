package governance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leadpilot/governance/internal/audit"
	"github.com/leadpilot/governance/internal/db/models"
	"github.com/leadpilot/governance/internal/governance"
	"github.com/leadpilot/governance/internal/policy"
	"github.com/leadpilot/governance/internal/rbac"
	"github.com/leadpilot/governance/internal/workflow"
)

// ---------------------------------------------------------------------------
// Fakes — in-memory stores behind the same interfaces the repositories
// implement, so coordinator tests exercise the real managers end to end.
// ---------------------------------------------------------------------------

type rbacStoreFake struct {
	perms map[string][]string
}

func (s *rbacStoreFake) GetRole(_ context.Context, _ string) (*models.Role, error) { return nil, nil }
func (s *rbacStoreFake) CreateRole(_ context.Context, _ *models.Role) error        { return nil }
func (s *rbacStoreFake) ListRoles(_ context.Context) ([]models.Role, error)        { return nil, nil }
func (s *rbacStoreFake) AssignRole(_ context.Context, _ *models.UserRole) (bool, error) {
	return false, nil
}
func (s *rbacStoreFake) RevokeRole(_ context.Context, _, _ string) error { return nil }
func (s *rbacStoreFake) UserRoles(_ context.Context, _ string) ([]models.Role, error) {
	return nil, nil
}
func (s *rbacStoreFake) UserPermissions(_ context.Context, userID string) ([]string, error) {
	return s.perms[userID], nil
}

type auditStoreFake struct {
	mu        sync.Mutex
	entries   []*models.AuditLog
	insertErr error
}

func (s *auditStoreFake) Insert(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *auditStoreFake) List(_ context.Context, _ audit.Filters, _ int) ([]*models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AuditLog(nil), s.entries...), nil
}

func (s *auditStoreFake) lastEntry() *models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[len(s.entries)-1]
}

// approvalStoreFake mirrors the repository's compare-and-set resolution
type approvalStoreFake struct {
	mu       sync.Mutex
	requests map[string]*models.ApprovalRequest
}

func newApprovalStoreFake() *approvalStoreFake {
	return &approvalStoreFake{requests: make(map[string]*models.ApprovalRequest)}
}

func (s *approvalStoreFake) Create(_ context.Context, req *models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *req
	s.requests[req.ApprovalID] = &clone
	return nil
}

func (s *approvalStoreFake) Get(_ context.Context, approvalID string) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[approvalID]
	if !ok {
		return nil, nil
	}
	clone := *req
	return &clone, nil
}

func (s *approvalStoreFake) ListPending(_ context.Context) ([]*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ApprovalRequest
	for _, req := range s.requests {
		if req.Status == models.ApprovalPending {
			clone := *req
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *approvalStoreFake) Resolve(_ context.Context, approvalID, approverID string, status models.ApprovalStatus, comments string, resolvedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[approvalID]
	if !ok || req.Status != models.ApprovalPending {
		return false, nil
	}
	req.Status = status
	req.ApproverID = &approverID
	req.Comments = &comments
	req.ResolvedAt = &resolvedAt
	return true, nil
}

// testHarness bundles a coordinator with its fakes
type testHarness struct {
	coordinator *governance.Coordinator
	rbacStore   *rbacStoreFake
	auditStore  *auditStoreFake
	approvals   *approvalStoreFake
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	rbacStore := &rbacStoreFake{perms: map[string][]string{
		// Mirrors the predefined roles: a rep sells, a viewer reads, a
		// manager additionally approves AI decisions.
		"rep-1":     {"read_leads", "write_leads", "execute_ai_tools", "send_emails"},
		"viewer-1":  {"read_leads", "read_accounts"},
		"manager-1": {"read_leads", "write_leads", "approve_ai_decisions"},
	}}
	auditStore := &auditStoreFake{}
	approvals := newApprovalStoreFake()

	engine, err := policy.NewEngine(context.Background(), nil)
	if err != nil {
		t.Fatalf("policy.NewEngine error: %v", err)
	}

	return &testHarness{
		coordinator: governance.NewCoordinator(
			rbac.NewManager(rbacStore, time.Minute),
			engine,
			audit.NewManager(auditStore, nil),
			approvals,
		),
		rbacStore:  rbacStore,
		auditStore: auditStore,
		approvals:  approvals,
	}
}

// ---------------------------------------------------------------------------
// AuthorizeAction
// ---------------------------------------------------------------------------

func TestAuthorizeAction_Authorized(t *testing.T) {
	h := newHarness(t)

	decision, err := h.coordinator.AuthorizeAction(context.Background(), "rep-1", "read", "lead", "l-1", nil)
	if err != nil {
		t.Fatalf("AuthorizeAction error: %v", err)
	}
	if !decision.Authorized || decision.Reason != governance.ReasonAuthorized {
		t.Errorf("decision = %+v, want authorized", decision)
	}

	// Every attempt is audited
	entry := h.auditStore.lastEntry()
	if entry == nil {
		t.Fatal("authorized action left no audit record")
	}
	if entry.EventType != models.EventDataAccess || entry.UserID != "rep-1" {
		t.Errorf("audit entry = %+v, want data_access by rep-1", entry)
	}
}

func TestAuthorizeAction_InsufficientPermissions(t *testing.T) {
	h := newHarness(t)

	decision, err := h.coordinator.AuthorizeAction(context.Background(), "viewer-1", "write", "lead", "l-1", nil)
	if err != nil {
		t.Fatalf("AuthorizeAction error: %v", err)
	}
	if decision.Authorized || decision.Reason != governance.ReasonInsufficientPermissions {
		t.Errorf("decision = %+v, want insufficient_permissions", decision)
	}

	entry := h.auditStore.lastEntry()
	if entry == nil || entry.EventType != models.EventPermissionDenied {
		t.Errorf("audit entry = %+v, want permission_denied", entry)
	}
	if entry.Details["required_permission"] != "write_leads" {
		t.Errorf("audit details = %v, want required_permission=write_leads", entry.Details)
	}
}

func TestAuthorizeAction_UnknownUserDeniedAtGate(t *testing.T) {
	h := newHarness(t)

	decision, err := h.coordinator.AuthorizeAction(context.Background(), "ghost", "delete", "account", "a-1", nil)
	if err != nil {
		t.Fatalf("AuthorizeAction error: %v", err)
	}
	if decision.Authorized {
		t.Error("user with no roles was authorized for delete")
	}
}

func TestAuthorizeAction_AIToolExecution(t *testing.T) {
	h := newHarness(t)

	// A rep holds execute_ai_tools; plain tool execution passes the gate and
	// no ai_behavior rule matches an execute action.
	decision, err := h.coordinator.AuthorizeAction(context.Background(), "rep-1", "execute", "ai_tool", "lead_scorer", nil)
	if err != nil {
		t.Fatalf("AuthorizeAction error: %v", err)
	}
	if !decision.Authorized {
		t.Errorf("decision = %+v, want authorized", decision)
	}

	// A viewer does not hold execute_ai_tools
	decision, err = h.coordinator.AuthorizeAction(context.Background(), "viewer-1", "execute", "ai_tool", "lead_scorer", nil)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Authorized || decision.Reason != governance.ReasonInsufficientPermissions {
		t.Errorf("decision = %+v, want insufficient_permissions", decision)
	}
}

func TestAuthorizeAction_SendEmailAIGenerated(t *testing.T) {
	h := newHarness(t)

	// send/email maps to the communication policy; attach an internal
	// recipient so only the approval path under test can fire.
	decision, err := h.coordinator.AuthorizeAction(context.Background(), "rep-1", "send", "email", "", map[string]any{
		"recipient_domain": "company.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Authorized {
		t.Errorf("internal email decision = %+v, want authorized", decision)
	}

	// External recipients trip the default external_email_restriction rule
	decision, err = h.coordinator.AuthorizeAction(context.Background(), "rep-1", "send", "email", "", map[string]any{
		"recipient_domain": "prospect.io",
	})
	if err != nil {
		t.Fatal(err)
	}
	if decision.Authorized || decision.Reason != governance.ReasonRequiresApproval {
		t.Fatalf("external email decision = %+v, want requires_approval", decision)
	}
	if decision.ApprovalID == "" {
		t.Fatal("requires_approval decision carries no approval id")
	}

	// The approval request is persisted as pending
	req, err := h.approvals.Get(context.Background(), decision.ApprovalID)
	if err != nil || req == nil {
		t.Fatalf("approval %s not persisted: %v", decision.ApprovalID, err)
	}
	if req.Status != models.ApprovalPending || req.UserID != "rep-1" {
		t.Errorf("approval = %+v, want pending for rep-1", req)
	}
}

func TestAuthorizeAction_AuditFailureFailsClosed(t *testing.T) {
	h := newHarness(t)
	h.auditStore.insertErr = errors.New("wal full")

	// Even a fully permitted action must not proceed unaudited
	_, err := h.coordinator.AuthorizeAction(context.Background(), "rep-1", "read", "lead", "l-1", nil)
	if !errors.Is(err, audit.ErrAuditWrite) {
		t.Errorf("error = %v, want ErrAuditWrite (fail closed)", err)
	}
}

func TestAuthorizeAction_UnmappedPairSkipsRBACGate(t *testing.T) {
	h := newHarness(t)

	// No permission maps to (archive, report): policy evaluation still runs
	decision, err := h.coordinator.AuthorizeAction(context.Background(), "viewer-1", "archive", "report", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Authorized {
		t.Errorf("decision = %+v, want authorized (no permission mapped, no policy match)", decision)
	}
}

// ---------------------------------------------------------------------------
// ApproveAction
// ---------------------------------------------------------------------------

func queueApproval(t *testing.T, h *testHarness) string {
	t.Helper()
	decision, err := h.coordinator.AuthorizeAction(context.Background(), "rep-1", "send", "email", "", map[string]any{
		"recipient_domain": "prospect.io",
	})
	if err != nil {
		t.Fatal(err)
	}
	if decision.ApprovalID == "" {
		t.Fatal("expected a queued approval")
	}
	return decision.ApprovalID
}

func TestApproveAction_Approve(t *testing.T) {
	h := newHarness(t)
	approvalID := queueApproval(t, h)

	req, err := h.coordinator.ApproveAction(context.Background(), approvalID, "manager-1", true, "looks good")
	if err != nil {
		t.Fatalf("ApproveAction error: %v", err)
	}
	if req.Status != models.ApprovalApproved {
		t.Errorf("Status = %s, want approved", req.Status)
	}
	if req.ApproverID == nil || *req.ApproverID != "manager-1" {
		t.Errorf("ApproverID = %v, want manager-1", req.ApproverID)
	}
	if req.ResolvedAt == nil {
		t.Error("ResolvedAt not set")
	}

	entry := h.auditStore.lastEntry()
	if entry == nil || entry.EventType != models.EventAIDecision || entry.Action != "approve_action" {
		t.Errorf("audit entry = %+v, want ai_decision approve_action", entry)
	}
}

func TestApproveAction_Deny(t *testing.T) {
	h := newHarness(t)
	approvalID := queueApproval(t, h)

	req, err := h.coordinator.ApproveAction(context.Background(), approvalID, "manager-1", false, "not appropriate")
	if err != nil {
		t.Fatalf("ApproveAction error: %v", err)
	}
	if req.Status != models.ApprovalDenied {
		t.Errorf("Status = %s, want denied", req.Status)
	}
}

func TestApproveAction_ApproverNotPermitted(t *testing.T) {
	h := newHarness(t)
	approvalID := queueApproval(t, h)

	// A rep cannot approve, not even their own request
	_, err := h.coordinator.ApproveAction(context.Background(), approvalID, "rep-1", true, "")
	if !errors.Is(err, governance.ErrNotPermitted) {
		t.Errorf("error = %v, want ErrNotPermitted", err)
	}

	req, _ := h.approvals.Get(context.Background(), approvalID)
	if req.Status != models.ApprovalPending {
		t.Error("unpermitted approval attempt changed request status")
	}
}

func TestApproveAction_UnknownApproval(t *testing.T) {
	h := newHarness(t)
	_, err := h.coordinator.ApproveAction(context.Background(), "no-such-id", "manager-1", true, "")
	if !errors.Is(err, governance.ErrApprovalNotFound) {
		t.Errorf("error = %v, want ErrApprovalNotFound", err)
	}
}

func TestApproveAction_AlreadyResolved(t *testing.T) {
	h := newHarness(t)
	approvalID := queueApproval(t, h)

	if _, err := h.coordinator.ApproveAction(context.Background(), approvalID, "manager-1", true, ""); err != nil {
		t.Fatal(err)
	}
	_, err := h.coordinator.ApproveAction(context.Background(), approvalID, "manager-1", false, "changed my mind")
	if !errors.Is(err, governance.ErrAlreadyResolved) {
		t.Errorf("error = %v, want ErrAlreadyResolved", err)
	}
}

func TestApproveAction_ConcurrentResolutionRace(t *testing.T) {
	h := newHarness(t)
	approvalID := queueApproval(t, h)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.coordinator.ApproveAction(context.Background(), approvalID, "manager-1", i%2 == 0, "")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, governance.ErrAlreadyResolved):
		default:
			t.Errorf("unexpected race error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("%d callers resolved the approval, want exactly 1", winners)
	}
}

// ---------------------------------------------------------------------------
// PendingApprovals
// ---------------------------------------------------------------------------

func TestPendingApprovals_ApproverSeesQueue(t *testing.T) {
	h := newHarness(t)
	queueApproval(t, h)
	queueApproval(t, h)

	pending, err := h.coordinator.PendingApprovals(context.Background(), "manager-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Errorf("len(pending) = %d, want 2", len(pending))
	}
}

func TestPendingApprovals_NonApproverSeesEmptyList(t *testing.T) {
	h := newHarness(t)
	queueApproval(t, h)

	pending, err := h.coordinator.PendingApprovals(context.Background(), "viewer-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("len(pending) = %d, want 0 for non-approver", len(pending))
	}
}

func TestPendingApprovals_ExcludesResolved(t *testing.T) {
	h := newHarness(t)
	first := queueApproval(t, h)
	queueApproval(t, h)

	if _, err := h.coordinator.ApproveAction(context.Background(), first, "manager-1", true, ""); err != nil {
		t.Fatal(err)
	}

	pending, err := h.coordinator.PendingApprovals(context.Background(), "manager-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("len(pending) = %d, want 1 after resolving one", len(pending))
	}
}

// ---------------------------------------------------------------------------
// StepAuthorizer
// ---------------------------------------------------------------------------

func TestStepAuthorizer_GovernsOnlyAIToolSteps(t *testing.T) {
	h := newHarness(t)
	authorize := governance.StepAuthorizer(h.coordinator)

	wctx := &workflow.Context{
		WorkflowID: "wf-1", ExecutionID: "ex-1",
		Metadata: map[string]any{"triggered_by": "viewer-1"},
	}

	// A notification step passes even for a caller with no AI permissions
	err := authorize(context.Background(), &workflow.Step{
		ID: "s-notify", ActionType: workflow.ActionNotification,
	}, wctx)
	if err != nil {
		t.Errorf("non-ai_tool step gated: %v", err)
	}

	// The ai_tool step is denied for the same caller
	err = authorize(context.Background(), &workflow.Step{
		ID: "s-ai", ActionType: workflow.ActionAITool,
		Config: map[string]any{"tool_name": "lead_scorer"},
	}, wctx)
	if !errors.Is(err, governance.ErrStepDenied) {
		t.Errorf("error = %v, want ErrStepDenied", err)
	}
}

func TestStepAuthorizer_PermittedUserPasses(t *testing.T) {
	h := newHarness(t)
	authorize := governance.StepAuthorizer(h.coordinator)

	err := authorize(context.Background(), &workflow.Step{
		ID: "s-ai", ActionType: workflow.ActionAITool,
		Config: map[string]any{"tool_name": "lead_scorer"},
	}, &workflow.Context{
		WorkflowID: "wf-1", ExecutionID: "ex-1",
		Metadata: map[string]any{"triggered_by": "rep-1"},
	})
	if err != nil {
		t.Errorf("permitted user denied: %v", err)
	}

	// The step authorization is itself audited
	if h.auditStore.lastEntry() == nil {
		t.Error("governed step left no audit record")
	}
}

func TestStepAuthorizer_SystemIdentitiesPassThrough(t *testing.T) {
	h := newHarness(t)
	authorize := governance.StepAuthorizer(h.coordinator)
	step := &workflow.Step{
		ID: "s-ai", ActionType: workflow.ActionAITool,
		Config: map[string]any{"tool_name": "lead_scorer"},
	}

	for _, identity := range []string{"event:lead.created", "workflow:wf-parent", ""} {
		wctx := &workflow.Context{WorkflowID: "wf-1", ExecutionID: "ex-1"}
		if identity != "" {
			wctx.Metadata = map[string]any{"triggered_by": identity}
		}
		if err := authorize(context.Background(), step, wctx); err != nil {
			t.Errorf("system identity %q gated: %v", identity, err)
		}
	}
}
