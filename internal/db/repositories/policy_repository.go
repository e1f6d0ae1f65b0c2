// policy_repository.go implements PolicyRepository for governance rule
// storage. Satisfies policy.Store. Rules whose conditions fail to decode are
// skipped with a logged warning rather than poisoning the whole load.
package repositories

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/leadpilot/governance/internal/db/models"
)

// PolicyRepository handles database operations for policy rules
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// ListRules returns all stored rules ordered by policy type and priority.
// Malformed condition payloads are skipped, not fatal.
func (r *PolicyRepository) ListRules(ctx context.Context) ([]models.PolicyRule, error) {
	query := `SELECT rule_id, name, description, policy_type, conditions, action, priority, enabled, created_at, updated_at
			  FROM policy_rules ORDER BY policy_type, priority`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.PolicyRule
	for rows.Next() {
		var rule models.PolicyRule
		var conditionsJSON []byte
		if err := rows.Scan(&rule.RuleID, &rule.Name, &rule.Description, &rule.PolicyType,
			&conditionsJSON, &rule.Action, &rule.Priority, &rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
			slog.Warn("Skipping policy rule with malformed conditions", "rule_id", rule.RuleID, "error", err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SaveRule upserts a rule keyed by rule_id
func (r *PolicyRepository) SaveRule(ctx context.Context, rule *models.PolicyRule) error {
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return err
	}

	query := `INSERT INTO policy_rules (rule_id, name, description, policy_type, conditions, action, priority, enabled, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			  ON CONFLICT (rule_id) DO UPDATE SET
				  name = EXCLUDED.name,
				  description = EXCLUDED.description,
				  policy_type = EXCLUDED.policy_type,
				  conditions = EXCLUDED.conditions,
				  action = EXCLUDED.action,
				  priority = EXCLUDED.priority,
				  enabled = EXCLUDED.enabled,
				  updated_at = EXCLUDED.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		rule.RuleID, rule.Name, rule.Description, string(rule.PolicyType),
		conditionsJSON, string(rule.Action), rule.Priority, rule.Enabled, time.Now().UTC())
	return err
}

// SetRuleEnabled toggles a rule without touching its definition
func (r *PolicyRepository) SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE policy_rules SET enabled = $2, updated_at = now() WHERE rule_id = $1`, ruleID, enabled)
	return err
}
