package models

import (
	"testing"
	"time"
)

func TestActionContext_Value(t *testing.T) {
	ts := time.Now()
	ctx := &ActionContext{
		UserID:       "u-1",
		Action:       "read",
		ResourceType: "lead",
		ResourceID:   "l-9",
		Timestamp:    ts,
		Extra:        map[string]any{"lead_score": 85, "user_id": "spoofed"},
	}

	tests := []struct {
		key         string
		want        any
		wantPresent bool
	}{
		{"user_id", "u-1", true}, // well-known field wins over Extra
		{"action", "read", true},
		{"resource_type", "lead", true},
		{"resource_id", "l-9", true},
		{"timestamp", ts, true},
		{"lead_score", 85, true},
		{"missing_key", nil, false},
	}

	for _, tt := range tests {
		got, present := ctx.Value(tt.key)
		if present != tt.wantPresent {
			t.Errorf("Value(%q) present = %v, want %v", tt.key, present, tt.wantPresent)
			continue
		}
		if present && got != tt.want {
			t.Errorf("Value(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestActionContext_ValueNilExtra(t *testing.T) {
	ctx := &ActionContext{UserID: "u-1"}
	if _, present := ctx.Value("anything"); present {
		t.Error("Value on nil Extra reported presence for unknown key")
	}
}

func TestActionContext_Snapshot(t *testing.T) {
	ctx := &ActionContext{
		UserID:       "u-1",
		Action:       "write",
		ResourceType: "account",
		Extra:        map[string]any{"field": "revenue"},
	}
	snap := ctx.Snapshot()

	if snap["user_id"] != "u-1" || snap["action"] != "write" || snap["field"] != "revenue" {
		t.Errorf("Snapshot missing expected entries: %v", snap)
	}
	if _, ok := snap["resource_id"]; ok {
		t.Error("Snapshot included empty resource_id")
	}
}

func TestActionContext_Clone(t *testing.T) {
	ctx := &ActionContext{
		UserID: "u-1",
		Extra:  map[string]any{"email_body": "hello"},
	}
	clone := ctx.Clone()

	clone.Extra["email_body"] = "[REDACTED]"
	if ctx.Extra["email_body"] != "hello" {
		t.Error("mutating clone Extra affected the original")
	}

	clone.UserID = "u-2"
	if ctx.UserID != "u-1" {
		t.Error("mutating clone affected the original")
	}
}

func TestActionContext_CloneNilExtra(t *testing.T) {
	ctx := &ActionContext{UserID: "u-1"}
	clone := ctx.Clone()
	if clone.Extra != nil {
		t.Error("Clone materialized an Extra map the original did not have")
	}
}
