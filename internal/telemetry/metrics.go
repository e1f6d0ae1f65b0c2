// Package telemetry provides application-level observability for the
// governance platform.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<LPG_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text
// exposition format and is intended to be scraped every 15–60 seconds.  It is
// NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Authorization decision counters (by outcome) and policy evaluation counters
//   - Approval queue gauge and audit write failure counter
//   - Workflow execution/step counters, step latency histogram, active execution gauge
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /v1/approvals/:id)
// rather than the raw request URL to prevent unbounded label cardinality.
// Policy metrics are labelled by policy type and action — both closed
// enumerations — never by rule id or user id.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Governance metrics — recorded by the coordinator and policy engine.
//
// AuthorizationDecisions is a CounterVec with label {result} holding one of
// authorized, insufficient_permissions, policy_violation, requires_approval.
//
// Example PromQL queries:
//   - Denial rate (%): sum(rate(authorization_decisions_total{result!="authorized"}[5m])) / sum(rate(authorization_decisions_total[5m])) * 100
//
// PolicyEvaluations is a CounterVec with labels {policy_type, action} counting
// evaluation outcomes; PolicyRuleMatches counts matched rules by policy type.
//
// ApprovalsPending is a Gauge tracking the current approval queue depth.
// An alert on a persistently growing queue catches missing approvers early.
//
// AuditWriteFailures counts failed audit appends. The system fails closed on
// these, so any increase means authorizations are being rejected — alert on
// increase(audit_write_failures_total[5m]) > 0.
var (
	AuthorizationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authorization_decisions_total",
			Help: "Total number of authorization decisions, by result.",
		},
		[]string{"result"},
	)

	PolicyEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_evaluations_total",
			Help: "Total number of policy evaluations, by policy type and winning action.",
		},
		[]string{"policy_type", "action"},
	)

	PolicyRuleMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_rule_matches_total",
			Help: "Total number of policy rule matches, by policy type.",
		},
		[]string{"policy_type"},
	)

	ApprovalsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "approvals_pending",
			Help: "Current number of approval requests awaiting resolution.",
		},
	)

	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of failed audit log writes (authorization fails closed on these).",
		},
	)
)

// Workflow metrics — recorded by the workflow engine.
//
// WorkflowStepDuration is a HistogramVec with label {action_type} observing
// executor wall time per step attempt.  WorkflowStepsTotal counts step
// outcomes with labels {action_type, status} (completed, failed, skipped).
// WorkflowExecutionsTotal counts finished executions by terminal status;
// WorkflowExecutionsActive gauges currently running executions.
//
// Example PromQL queries:
//   - p95 AI tool step latency:  histogram_quantile(0.95, rate(workflow_step_duration_seconds_bucket{action_type="ai_tool"}[1h]))
//   - Step failure rate:         sum(rate(workflow_steps_total{status="failed"}[1h]))
var (
	WorkflowStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_step_duration_seconds",
			Help:    "Duration of workflow step executor invocations, by action type.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action_type"},
	)

	WorkflowStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_steps_total",
			Help: "Total number of workflow steps finished, by action type and status.",
		},
		[]string{"action_type", "status"},
	)

	WorkflowExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_executions_total",
			Help: "Total number of workflow executions finished, by terminal status.",
		},
		[]string{"status"},
	)

	WorkflowExecutionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workflow_executions_active",
			Help: "Current number of running workflow executions.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections
// currently held by the sql.DB pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates DBOpenConnections.
// The goroutine exits cleanly when the database becomes unreachable, which
// happens automatically when the application shuts down and defers db.Close().
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
