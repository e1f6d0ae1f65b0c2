// Package policy - defaults.go defines the default rule set seeded on startup.
package policy

import "github.com/leadpilot/governance/internal/db/models"

// DefaultRules returns the built-in governance rules. They are merged into
// the store by rule_id; a stored rule with the same id always wins.
func DefaultRules() []models.PolicyRule {
	ownLeadsDesc := "Sales reps can access their own leads"
	aiEmailDesc := "AI-generated emails require approval"
	externalEmailDesc := "Emails to external domains require approval"
	piiDesc := "Redact PII from logs and exports"

	return []models.PolicyRule{
		{
			RuleID:      "data_access_own_leads",
			Name:        "Own Leads Access",
			Description: &ownLeadsDesc,
			PolicyType:  models.PolicyTypeDataAccess,
			Conditions: map[string]models.Condition{
				"resource_type": {Operator: "equals", Value: "lead"},
				"action":        {Operator: "equals", Value: "read"},
			},
			Action:   models.ActionAllow,
			Priority: 100,
			Enabled:  true,
		},
		{
			RuleID:      "ai_email_approval",
			Name:        "AI Email Approval",
			Description: &aiEmailDesc,
			PolicyType:  models.PolicyTypeAIBehavior,
			Conditions: map[string]models.Condition{
				"action":       {Operator: "equals", Value: "send_email"},
				"ai_generated": {Operator: "equals", Value: true},
			},
			Action:   models.ActionRequireApproval,
			Priority: 50,
			Enabled:  true,
		},
		{
			RuleID:      "external_email_restriction",
			Name:        "External Email Restriction",
			Description: &externalEmailDesc,
			PolicyType:  models.PolicyTypeCommunication,
			Conditions: map[string]models.Condition{
				"recipient_domain": {Operator: "not_in", Values: []any{"company.com"}},
			},
			Action:   models.ActionRequireApproval,
			Priority: 60,
			Enabled:  true,
		},
		{
			RuleID:      "pii_redaction",
			Name:        "PII Redaction",
			Description: &piiDesc,
			PolicyType:  models.PolicyTypePrivacy,
			Conditions: map[string]models.Condition{
				"contains_pii": {Operator: "equals", Value: true},
			},
			Action:   models.ActionRedact,
			Priority: 30,
			Enabled:  true,
		},
	}
}
