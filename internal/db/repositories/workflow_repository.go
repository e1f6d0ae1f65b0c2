// workflow_repository.go implements WorkflowRepository for execution
// snapshot persistence. Satisfies workflow.ExecutionStore: the engine writes
// through on every state change so executions survive a restart.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/leadpilot/governance/internal/workflow"
)

// WorkflowRepository handles database operations for workflow executions
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Save upserts an execution snapshot keyed by execution id
func (r *WorkflowRepository) Save(ctx context.Context, snap *workflow.Snapshot) error {
	snapshotJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal execution snapshot: %w", err)
	}

	query := `INSERT INTO workflow_executions (execution_id, workflow_id, status, snapshot, started_at, completed_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, now())
			  ON CONFLICT (execution_id) DO UPDATE SET
				  status = EXCLUDED.status,
				  snapshot = EXCLUDED.snapshot,
				  completed_at = EXCLUDED.completed_at,
				  updated_at = now()`

	_, err = r.db.ExecContext(ctx, query,
		snap.ID, snap.WorkflowID, string(snap.Status), snapshotJSON, snap.StartedAt, snap.CompletedAt)
	return err
}

// Get retrieves one execution snapshot; nil when absent
func (r *WorkflowRepository) Get(ctx context.Context, executionID string) (*workflow.Snapshot, error) {
	var snapshotJSON []byte
	err := r.db.QueryRowxContext(ctx,
		`SELECT snapshot FROM workflow_executions WHERE execution_id = $1`, executionID).Scan(&snapshotJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap workflow.Snapshot
	if err := json.Unmarshal(snapshotJSON, &snap); err != nil {
		return nil, fmt.Errorf("decode execution snapshot %s: %w", executionID, err)
	}
	return &snap, nil
}

// List returns execution snapshots newest-first, filtered by workflow id and
// status when non-empty
func (r *WorkflowRepository) List(ctx context.Context, workflowID string, status workflow.Status, limit int) ([]*workflow.Snapshot, error) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if workflowID != "" {
		conditions = append(conditions, "workflow_id = "+arg(workflowID))
	}
	if status != "" {
		conditions = append(conditions, "status = "+arg(string(status)))
	}
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT snapshot FROM workflow_executions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at DESC LIMIT " + arg(limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*workflow.Snapshot
	for rows.Next() {
		var snapshotJSON []byte
		if err := rows.Scan(&snapshotJSON); err != nil {
			return nil, err
		}
		var snap workflow.Snapshot
		if err := json.Unmarshal(snapshotJSON, &snap); err != nil {
			return nil, fmt.Errorf("decode execution snapshot: %w", err)
		}
		snapshots = append(snapshots, &snap)
	}
	return snapshots, rows.Err()
}
