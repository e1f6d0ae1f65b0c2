// Package workflow - triggers.go implements trigger matching for inbound events.
package workflow

import "log/slog"

// ShouldFire reports whether an inbound event starts this trigger's workflow.
// Event triggers match on event type equality; condition triggers evaluate
// their expression against the event payload. Manual, scheduled, and webhook
// triggers never fire from events.
func (t *Trigger) ShouldFire(event map[string]any) bool {
	switch t.Type {
	case TriggerEvent:
		want, _ := t.Config["event_type"].(string)
		got, _ := event["type"].(string)
		return want != "" && want == got
	case TriggerCondition:
		expr, _ := t.Config["condition"].(string)
		if expr == "" {
			return false
		}
		met, err := EvalCondition(expr, &Context{Data: event})
		if err != nil {
			slog.Warn("Condition trigger evaluation failed", "trigger_id", t.ID, "error", err)
			return false
		}
		return met
	default:
		return false
	}
}
