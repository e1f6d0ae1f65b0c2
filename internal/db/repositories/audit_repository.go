// audit_repository.go implements AuditRepository for the append-only audit
// trail. Satisfies audit.Store. There is deliberately no update or delete
// path here.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/leadpilot/governance/internal/audit"
	"github.com/leadpilot/governance/internal/db/models"
)

// AuditRepository handles database operations for audit logs
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends one audit record
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	violationsJSON, err := json.Marshal(entry.Violations)
	if err != nil {
		return fmt.Errorf("marshal audit violations: %w", err)
	}
	if entry.Details == nil {
		detailsJSON = []byte("{}")
	}
	if entry.Violations == nil {
		violationsJSON = []byte("[]")
	}

	query := `INSERT INTO audit_logs (audit_id, event_type, user_id, resource_type, resource_id, action, timestamp, ip_address, user_agent, details, policy_violations)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, query,
		entry.AuditID, string(entry.EventType), entry.UserID, entry.ResourceType, entry.ResourceID,
		entry.Action, entry.Timestamp, entry.IPAddress, entry.UserAgent, detailsJSON, violationsJSON)
	return err
}

// List returns matching records newest-first, up to limit
func (r *AuditRepository) List(ctx context.Context, filters audit.Filters, limit int) ([]*models.AuditLog, error) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.UserID != nil {
		conditions = append(conditions, "user_id = "+arg(*filters.UserID))
	}
	if filters.EventType != nil {
		conditions = append(conditions, "event_type = "+arg(string(*filters.EventType)))
	}
	if filters.ResourceType != nil {
		conditions = append(conditions, "resource_type = "+arg(*filters.ResourceType))
	}
	if filters.ResourceID != nil {
		conditions = append(conditions, "resource_id = "+arg(*filters.ResourceID))
	}
	if filters.Start != nil {
		conditions = append(conditions, "timestamp >= "+arg(*filters.Start))
	}
	if filters.End != nil {
		conditions = append(conditions, "timestamp < "+arg(*filters.End))
	}

	query := `SELECT audit_id, event_type, user_id, resource_type, resource_id, action, timestamp, ip_address, user_agent, details, policy_violations
			  FROM audit_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT " + arg(limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		var detailsJSON, violationsJSON []byte
		if err := rows.Scan(&entry.AuditID, &entry.EventType, &entry.UserID, &entry.ResourceType, &entry.ResourceID,
			&entry.Action, &entry.Timestamp, &entry.IPAddress, &entry.UserAgent, &detailsJSON, &violationsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
			return nil, fmt.Errorf("decode audit details for %s: %w", entry.AuditID, err)
		}
		if err := json.Unmarshal(violationsJSON, &entry.Violations); err != nil {
			return nil, fmt.Errorf("decode audit violations for %s: %w", entry.AuditID, err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
