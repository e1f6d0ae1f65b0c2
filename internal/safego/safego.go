// Package safego wraps goroutine launches with panic recovery. Workflow
// executions and audit shipping run detached from any request; a panic there
// must be logged, not allowed to take down the process.
package safego

import "log/slog"

// Go runs fn on a new goroutine, recovering and logging any panic. Every
// detached goroutine in this module goes through here so a misbehaving step
// executor or shipper destination can never crash the server.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
