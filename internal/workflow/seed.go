// Package workflow - seed.go registers the built-in workflow definitions.
package workflow

import "fmt"

// RegisterDefaults installs the built-in workflows. Registration is
// idempotent: re-registering replaces the definition with the same id.
func RegisterDefaults(e *Engine) error {
	for _, def := range DefaultWorkflows() {
		if err := e.Register(def); err != nil {
			return fmt.Errorf("seed workflow %s: %w", def.ID, err)
		}
	}
	return nil
}

// DefaultWorkflows returns the built-in workflow definitions: new-lead
// qualification and stalled-opportunity follow-up.
func DefaultWorkflows() []*Definition {
	return []*Definition{
		{
			ID:          "lead_qualification_v1",
			Name:        "Lead Qualification",
			Description: "Qualify inbound leads: enrich, score, welcome high scorers, hand off to sales",
			Version:     "1.0",
			Variables: map[string]any{
				"score_threshold": float64(70),
			},
			Triggers: []Trigger{
				{
					ID:     "lead_created",
					Type:   TriggerEvent,
					Config: map[string]any{"event_type": "lead.created"},
				},
			},
			Steps: []Step{
				{
					ID:         "enrich_lead",
					Name:       "Enrich Lead Data",
					ActionType: ActionAITool,
					Config: map[string]any{
						"tool_name": "lead_enrichment",
						"parameters": map[string]any{
							"lead_id": "${lead_id}",
						},
					},
					TimeoutSeconds: 120,
					MaxRetries:     2,
				},
				{
					ID:         "score_lead",
					Name:       "Score Lead",
					ActionType: ActionAITool,
					Config: map[string]any{
						"tool_name": "lead_scoring",
						"parameters": map[string]any{
							"lead_id": "${lead_id}",
						},
					},
					Dependencies:   []string{"enrich_lead"},
					TimeoutSeconds: 60,
					MaxRetries:     2,
				},
				{
					ID:         "check_score",
					Name:       "Check Lead Score",
					ActionType: ActionCondition,
					Config: map[string]any{
						"condition": "${lead_score} >= ${score_threshold}",
					},
					Dependencies: []string{"score_lead"},
				},
				{
					ID:         "send_welcome_email",
					Name:       "Send Welcome Email",
					ActionType: ActionAITool,
					Config: map[string]any{
						"tool_name": "email_automation",
						"parameters": map[string]any{
							"lead_id":  "${lead_id}",
							"template": "welcome_qualified",
						},
					},
					Dependencies: []string{"check_score"},
					Conditions: []StepCondition{
						{Step: "check_score", Result: true},
					},
					TimeoutSeconds: 60,
				},
				{
					ID:         "assign_to_sales",
					Name:       "Assign to Sales Rep",
					ActionType: ActionHumanTask,
					Config: map[string]any{
						"title":        "Review new lead ${lead_id}",
						"description":  "Lead scored ${lead_score}; review and take ownership",
						"due_in_hours": float64(24),
					},
					Dependencies: []string{"check_score"},
				},
			},
		},
		{
			ID:          "opportunity_followup_v1",
			Name:        "Opportunity Follow-up",
			Description: "Nudge stalled opportunities: wait, generate a follow-up, notify the owner",
			Version:     "1.0",
			Triggers: []Trigger{
				{
					ID:   "opportunity_stalled",
					Type: TriggerCondition,
					Config: map[string]any{
						"condition": "${days_since_activity} >= 7",
					},
				},
			},
			Steps: []Step{
				{
					ID:         "wait_before_followup",
					Name:       "Wait Before Follow-up",
					ActionType: ActionDelay,
					Config: map[string]any{
						"delay_seconds": float64(60),
					},
				},
				{
					ID:         "draft_followup",
					Name:       "Draft Follow-up Email",
					ActionType: ActionAITool,
					Config: map[string]any{
						"tool_name": "email_automation",
						"parameters": map[string]any{
							"opportunity_id": "${opportunity_id}",
							"template":       "followup_stalled",
						},
					},
					Dependencies:   []string{"wait_before_followup"},
					TimeoutSeconds: 60,
					MaxRetries:     1,
				},
				{
					ID:         "notify_owner",
					Name:       "Notify Opportunity Owner",
					ActionType: ActionNotification,
					Config: map[string]any{
						"channel":   "email",
						"recipient": "${owner_email}",
						"message":   "Follow-up drafted for opportunity ${opportunity_id}",
					},
					Dependencies: []string{"draft_followup"},
				},
				{
					ID:         "mark_followup_sent",
					Name:       "Record Follow-up",
					ActionType: ActionDataUpdate,
					Config: map[string]any{
						"updates": map[string]any{
							"followup_state": "sent",
						},
					},
					Dependencies: []string{"notify_owner"},
				},
			},
		},
	}
}
