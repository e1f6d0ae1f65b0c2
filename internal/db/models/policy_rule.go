// Package models - policy_rule.go defines the PolicyRule model for governance
// rules (conditions, action, priority) and the condition matching logic, along
// with the predefined default rules.
package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PolicyType categorizes what a rule governs
type PolicyType string

const (
	PolicyTypeDataAccess    PolicyType = "data_access"
	PolicyTypeAIBehavior    PolicyType = "ai_behavior"
	PolicyTypeCommunication PolicyType = "communication"
	PolicyTypeRetention     PolicyType = "retention"
	PolicyTypePrivacy       PolicyType = "privacy"
	PolicyTypeSecurity      PolicyType = "security"
	PolicyTypeCompliance    PolicyType = "compliance"
)

// PolicyAction is the outcome a matched rule requests
type PolicyAction string

const (
	ActionAllow           PolicyAction = "allow"
	ActionDeny            PolicyAction = "deny"
	ActionRequireApproval PolicyAction = "require_approval"
	ActionLogOnly         PolicyAction = "log_only"
	ActionRedact          PolicyAction = "redact"
)

// AllPolicyTypes returns every policy type, in a stable order
func AllPolicyTypes() []PolicyType {
	return []PolicyType{
		PolicyTypeDataAccess,
		PolicyTypeAIBehavior,
		PolicyTypeCommunication,
		PolicyTypeRetention,
		PolicyTypePrivacy,
		PolicyTypeSecurity,
		PolicyTypeCompliance,
	}
}

// Restrictiveness ranks actions for most-restrictive-wins dominance:
// deny > require_approval > redact > log_only > allow.
func (a PolicyAction) Restrictiveness() int {
	switch a {
	case ActionDeny:
		return 4
	case ActionRequireApproval:
		return 3
	case ActionRedact:
		return 2
	case ActionLogOnly:
		return 1
	default:
		return 0
	}
}

// Condition is a single field matcher within a rule. It deserializes from
// either a bare JSON literal (implicit equals) or an object of the form
// {"operator": "in", "values": [...]} / {"operator": "regex", "value": "..."}.
type Condition struct {
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
	Values   []any  `json:"values,omitempty"`
}

// UnmarshalJSON accepts both the bare-literal and the operator-object forms
func (c *Condition) UnmarshalJSON(data []byte) error {
	var obj struct {
		Operator string `json:"operator"`
		Value    any    `json:"value"`
		Values   []any  `json:"values"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Operator != "" {
		c.Operator = obj.Operator
		c.Value = obj.Value
		c.Values = obj.Values
		return nil
	}

	var literal any
	if err := json.Unmarshal(data, &literal); err != nil {
		return err
	}
	c.Operator = "equals"
	c.Value = literal
	return nil
}

// MarshalJSON emits the bare-literal form for equals conditions
func (c Condition) MarshalJSON() ([]byte, error) {
	if c.Operator == "" || c.Operator == "equals" {
		return json.Marshal(c.Value)
	}
	type alias Condition
	return json.Marshal(alias(c))
}

// Matches evaluates the condition against a context value. An absent context
// key never matches except for not_in, which holds vacuously.
func (c *Condition) Matches(value any, present bool) (bool, error) {
	op := c.Operator
	if op == "" {
		op = "equals"
	}
	switch op {
	case "equals":
		return present && looseEqual(value, c.Value), nil
	case "in":
		if !present {
			return false, nil
		}
		for _, candidate := range c.Values {
			if looseEqual(value, candidate) {
				return true, nil
			}
		}
		return false, nil
	case "not_in":
		for _, candidate := range c.Values {
			if present && looseEqual(value, candidate) {
				return false, nil
			}
		}
		return true, nil
	case "contains":
		if !present {
			return false, nil
		}
		return strings.Contains(stringify(value), stringify(c.Value)), nil
	case "regex":
		if !present {
			return false, nil
		}
		pattern, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("regex condition requires a string pattern")
		}
		// Anchored at the start of the value, matching prefix semantics
		re, err := regexp.Compile("^(?:" + pattern + ")")
		if err != nil {
			return false, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
		}
		return re.MatchString(stringify(value)), nil
	default:
		return false, fmt.Errorf("unknown condition operator %q", op)
	}
}

// looseEqual compares values across the numeric types JSON decoding produces
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return fa == fb
		}
		return false
	}
	if sa, okA := a.(string); okA {
		sb, okB := b.(string)
		return okB && sa == sb
	}
	if ba, okA := a.(bool); okA {
		bb, okB := b.(bool)
		return okB && ba == bb
	}
	return stringify(a) == stringify(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

// PolicyRule represents a governance rule evaluated against action contexts
type PolicyRule struct {
	RuleID      string               `db:"rule_id" json:"rule_id"`
	Name        string               `db:"name" json:"name"`
	Description *string              `db:"description" json:"description,omitempty"`
	PolicyType  PolicyType           `db:"policy_type" json:"policy_type"`
	Conditions  map[string]Condition `db:"-" json:"conditions"`
	Action      PolicyAction         `db:"action" json:"action"`
	Priority    int                  `db:"priority" json:"priority"`
	Enabled     bool                 `db:"enabled" json:"enabled"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `db:"updated_at" json:"updated_at"`
}

// Matches reports whether every condition of the rule holds for the context.
// A malformed condition (bad regex, unknown operator) returns an error so the
// caller can skip the rule rather than silently mis-evaluate it.
func (r *PolicyRule) Matches(ctx *ActionContext) (bool, error) {
	for key, cond := range r.Conditions {
		value, present := ctx.Value(key)
		ok, err := cond.Matches(value, present)
		if err != nil {
			return false, fmt.Errorf("rule %s condition %q: %w", r.RuleID, key, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// PolicyViolation records a rule that matched during evaluation
type PolicyViolation struct {
	RuleID      string       `json:"rule_id"`
	RuleName    string       `json:"rule_name"`
	Action      PolicyAction `json:"action"`
	Description string       `json:"description,omitempty"`
}
