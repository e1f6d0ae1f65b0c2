// Package policy implements the governance policy engine: ordered rule
// evaluation per policy type with most-restrictive-wins dominance, and
// enforcement dispatch (deny, approval queueing, redaction, log-only).
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leadpilot/governance/internal/db/models"
	"github.com/leadpilot/governance/internal/telemetry"
)

// sensitiveFields are masked when a redact action wins enforcement
var sensitiveFields = []string{"ssn", "credit_card", "password", "api_key", "token"}

// redactedPlaceholder replaces sensitive values in redacted contexts
const redactedPlaceholder = "[REDACTED]"

// Store is the persistence interface for policy rules
type Store interface {
	ListRules(ctx context.Context) ([]models.PolicyRule, error)
	SaveRule(ctx context.Context, rule *models.PolicyRule) error
}

// Evaluation is the outcome of evaluating one policy type against a context
type Evaluation struct {
	Action     models.PolicyAction      `json:"action"`
	Violations []models.PolicyViolation `json:"violations,omitempty"`
}

// Enforcement is the actionable result of enforcing policies on a context
type Enforcement struct {
	Allowed          bool                     `json:"allowed"`
	Action           models.PolicyAction      `json:"action"`
	RequiresApproval bool                     `json:"requires_approval"`
	Logged           bool                     `json:"logged"`
	Redacted         bool                     `json:"redacted"`
	RedactedContext  *models.ActionContext    `json:"-"`
	Violations       []models.PolicyViolation `json:"violations,omitempty"`
	Message          string                   `json:"message,omitempty"`
}

// Engine holds the active rule set, bucketed by policy type and kept sorted
// by ascending priority
type Engine struct {
	store Store

	mu sync.RWMutex
	// Buckets are replaced on write, never mutated in place, so readers may
	// iterate a snapshot after releasing the lock.
	rules map[models.PolicyType][]models.PolicyRule
}

// NewEngine loads rules from the store and merges in the default rule set.
// Stored rules win over defaults with the same rule_id; defaults missing from
// the store are persisted so seeding is idempotent. A nil store yields an
// in-memory engine with just the defaults.
func NewEngine(ctx context.Context, store Store) (*Engine, error) {
	e := &Engine{
		store: store,
		rules: make(map[models.PolicyType][]models.PolicyRule),
	}

	seen := make(map[string]bool)
	if store != nil {
		stored, err := store.ListRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("load policy rules: %w", err)
		}
		for _, rule := range stored {
			seen[rule.RuleID] = true
			e.insert(rule)
		}
	}

	for _, rule := range DefaultRules() {
		if seen[rule.RuleID] {
			continue
		}
		if store != nil {
			r := rule
			if err := store.SaveRule(ctx, &r); err != nil {
				return nil, fmt.Errorf("seed policy rule %s: %w", rule.RuleID, err)
			}
		}
		e.insert(rule)
		slog.Info("Seeded default policy rule", "rule_id", rule.RuleID, "policy_type", rule.PolicyType)
	}

	return e, nil
}

// AddRule validates, persists, and activates a rule
func (e *Engine) AddRule(ctx context.Context, rule models.PolicyRule) error {
	if rule.RuleID == "" {
		return fmt.Errorf("policy rule requires a rule_id")
	}
	if rule.Action.Restrictiveness() == 0 && rule.Action != models.ActionAllow {
		return fmt.Errorf("unknown policy action %q", rule.Action)
	}
	if e.store != nil {
		if err := e.store.SaveRule(ctx, &rule); err != nil {
			return fmt.Errorf("save policy rule %s: %w", rule.RuleID, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Replace any existing rule with the same id, building a fresh bucket
	bucket := make([]models.PolicyRule, 0, len(e.rules[rule.PolicyType])+1)
	for _, existing := range e.rules[rule.PolicyType] {
		if existing.RuleID != rule.RuleID {
			bucket = append(bucket, existing)
		}
	}
	bucket = append(bucket, rule)
	sort.SliceStable(bucket, func(i, j int) bool {
		return bucket[i].Priority < bucket[j].Priority
	})
	e.rules[rule.PolicyType] = bucket
	return nil
}

// Rules returns a copy of the active rules for a policy type, in evaluation order
func (e *Engine) Rules(policyType models.PolicyType) []models.PolicyRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.PolicyRule, len(e.rules[policyType]))
	copy(out, e.rules[policyType])
	return out
}

func (e *Engine) insert(rule models.PolicyRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.rules[rule.PolicyType]
	bucket := make([]models.PolicyRule, 0, len(old)+1)
	bucket = append(append(bucket, old...), rule)
	sort.SliceStable(bucket, func(i, j int) bool {
		return bucket[i].Priority < bucket[j].Priority
	})
	e.rules[rule.PolicyType] = bucket
}

// Evaluate runs all enabled rules of a policy type against the context in
// ascending priority order. Every matched rule is recorded as a violation;
// the most restrictive matched action wins, and a deny match short-circuits.
// Rules that fail to evaluate (bad regex, unknown operator) are skipped.
func (e *Engine) Evaluate(policyType models.PolicyType, actionCtx *models.ActionContext) Evaluation {
	e.mu.RLock()
	bucket := e.rules[policyType]
	e.mu.RUnlock()

	result := Evaluation{Action: models.ActionAllow}
	for i := range bucket {
		rule := &bucket[i]
		if !rule.Enabled {
			continue
		}

		matched, err := rule.Matches(actionCtx)
		if err != nil {
			slog.Warn("Skipping malformed policy rule", "rule_id", rule.RuleID, "error", err)
			continue
		}
		if !matched {
			continue
		}

		desc := ""
		if rule.Description != nil {
			desc = *rule.Description
		}
		result.Violations = append(result.Violations, models.PolicyViolation{
			RuleID:      rule.RuleID,
			RuleName:    rule.Name,
			Action:      rule.Action,
			Description: desc,
		})
		telemetry.PolicyRuleMatches.WithLabelValues(string(policyType)).Inc()

		if rule.Action == models.ActionDeny {
			result.Action = models.ActionDeny
			break
		}
		if rule.Action.Restrictiveness() > result.Action.Restrictiveness() {
			result.Action = rule.Action
		}
	}

	telemetry.PolicyEvaluations.WithLabelValues(string(policyType), string(result.Action)).Inc()
	return result
}

// Enforce evaluates and dispatches on the winning action
func (e *Engine) Enforce(policyType models.PolicyType, actionCtx *models.ActionContext) Enforcement {
	eval := e.Evaluate(policyType, actionCtx)
	enf := Enforcement{
		Action:     eval.Action,
		Violations: eval.Violations,
	}

	switch eval.Action {
	case models.ActionDeny:
		enf.Allowed = false
		enf.Message = "Action denied by policy"
	case models.ActionRequireApproval:
		enf.Allowed = false
		enf.RequiresApproval = true
		enf.Message = "Action requires approval"
	case models.ActionRedact:
		enf.Allowed = true
		enf.Redacted = true
		enf.RedactedContext = RedactContext(actionCtx)
	case models.ActionLogOnly:
		enf.Allowed = true
		enf.Logged = true
		slog.Info("Policy log-only match",
			"policy_type", policyType,
			"user_id", actionCtx.UserID,
			"action", actionCtx.Action,
			"matched_rules", len(eval.Violations))
	default:
		enf.Allowed = true
	}

	return enf
}

// RedactContext returns a copy of the context with sensitive Extra fields
// masked. The original context is never mutated.
func RedactContext(actionCtx *models.ActionContext) *models.ActionContext {
	clone := actionCtx.Clone()
	for _, field := range sensitiveFields {
		if _, ok := clone.Extra[field]; ok {
			clone.Extra[field] = redactedPlaceholder
		}
	}
	return clone
}
