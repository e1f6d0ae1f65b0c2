// Package models - context.go defines the ActionContext passed through
// authorization: the well-known identity/action fields plus an Extra bag for
// caller-supplied attributes referenced by policy conditions.
package models

import "time"

// ActionContext describes a single attempted action for policy evaluation
// and audit. Well-known fields are addressable by name in policy conditions;
// anything else travels in Extra.
type ActionContext struct {
	UserID       string         `json:"user_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Value resolves a condition key against the context. Well-known fields take
// precedence over Extra entries of the same name.
func (c *ActionContext) Value(key string) (any, bool) {
	switch key {
	case "user_id":
		return c.UserID, true
	case "action":
		return c.Action, true
	case "resource_type":
		return c.ResourceType, true
	case "resource_id":
		return c.ResourceID, true
	case "timestamp":
		return c.Timestamp, true
	}
	if c.Extra != nil {
		if v, ok := c.Extra[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Snapshot returns a flat map of the context suitable for audit details
func (c *ActionContext) Snapshot() map[string]any {
	snap := make(map[string]any, len(c.Extra)+5)
	for k, v := range c.Extra {
		snap[k] = v
	}
	snap["user_id"] = c.UserID
	snap["action"] = c.Action
	snap["resource_type"] = c.ResourceType
	if c.ResourceID != "" {
		snap["resource_id"] = c.ResourceID
	}
	snap["timestamp"] = c.Timestamp
	return snap
}

// Clone returns a deep-enough copy: the Extra map is copied so the clone can
// be mutated (e.g. redacted) without touching the original.
func (c *ActionContext) Clone() *ActionContext {
	clone := *c
	if c.Extra != nil {
		clone.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}
