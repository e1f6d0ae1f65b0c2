// approval_repository.go implements ApprovalRepository for pending-approval
// persistence. Satisfies governance.ApprovalStore. Resolution is a single
// compare-and-set UPDATE on status = 'pending', so exactly one concurrent
// resolver ever wins.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/leadpilot/governance/internal/db/models"
)

// ApprovalRepository handles database operations for approval requests
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a new pending approval request
func (r *ApprovalRepository) Create(ctx context.Context, req *models.ApprovalRequest) error {
	contextJSON, err := json.Marshal(req.Context)
	if err != nil {
		return fmt.Errorf("marshal approval context: %w", err)
	}
	violationsJSON, err := json.Marshal(req.Violations)
	if err != nil {
		return fmt.Errorf("marshal approval violations: %w", err)
	}
	if req.Violations == nil {
		violationsJSON = []byte("[]")
	}

	query := `INSERT INTO approval_requests (approval_id, user_id, action, context, policy_violations, status, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query,
		req.ApprovalID, req.UserID, req.Action, contextJSON, violationsJSON, string(req.Status), req.CreatedAt)
	return err
}

// Get retrieves an approval request by id; nil when absent
func (r *ApprovalRepository) Get(ctx context.Context, approvalID string) (*models.ApprovalRequest, error) {
	query := `SELECT approval_id, user_id, action, context, policy_violations, status, approver_id, comments, created_at, resolved_at
			  FROM approval_requests WHERE approval_id = $1`

	req, err := r.scanOne(r.db.QueryRowxContext(ctx, query, approvalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

// ListPending returns all unresolved approval requests, oldest first
func (r *ApprovalRepository) ListPending(ctx context.Context) ([]*models.ApprovalRequest, error) {
	query := `SELECT approval_id, user_id, action, context, policy_violations, status, approver_id, comments, created_at, resolved_at
			  FROM approval_requests WHERE status = 'pending' ORDER BY created_at`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*models.ApprovalRequest
	for rows.Next() {
		req, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// Resolve atomically flips a pending request to a terminal status. Returns
// false when the request was not pending (already resolved or absent).
func (r *ApprovalRepository) Resolve(ctx context.Context, approvalID, approverID string, status models.ApprovalStatus, comments string, resolvedAt time.Time) (bool, error) {
	query := `UPDATE approval_requests
			  SET status = $2, approver_id = $3, comments = $4, resolved_at = $5
			  WHERE approval_id = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, approvalID, string(status), approverID, comments, resolvedAt)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CountPending returns the current approval queue depth
func (r *ApprovalRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM approval_requests WHERE status = 'pending'`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRepository) scanOne(row rowScanner) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	var contextJSON, violationsJSON []byte
	if err := row.Scan(&req.ApprovalID, &req.UserID, &req.Action, &contextJSON, &violationsJSON,
		&req.Status, &req.ApproverID, &req.Comments, &req.CreatedAt, &req.ResolvedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(contextJSON, &req.Context); err != nil {
		return nil, fmt.Errorf("decode approval context for %s: %w", req.ApprovalID, err)
	}
	if err := json.Unmarshal(violationsJSON, &req.Violations); err != nil {
		return nil, fmt.Errorf("decode approval violations for %s: %w", req.ApprovalID, err)
	}
	return &req, nil
}
