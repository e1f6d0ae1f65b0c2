// Package audit implements the append-only audit trail. Audit records are
// intentionally separate from application logs: application logs are
// ephemeral debug output, audit records are immutable compliance evidence
// with retention measured in years. Writes fail closed — a failed append is
// surfaced as ErrAuditWrite and the enclosing authorization must treat it as
// fatal rather than proceed unaudited.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/leadpilot/governance/internal/db/models"
	"github.com/leadpilot/governance/internal/safego"
	"github.com/leadpilot/governance/internal/telemetry"
)

// ErrAuditWrite wraps any failure to persist an audit record
var ErrAuditWrite = errors.New("audit write failed")

// DefaultTrailLimit bounds GetAuditTrail result sets when no limit is given
const DefaultTrailLimit = 100

// Store is the persistence interface for audit records
type Store interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filters Filters, limit int) ([]*models.AuditLog, error)
}

// Filters narrow an audit trail query. Nil fields are not applied.
type Filters struct {
	UserID       *string
	EventType    *models.AuditEventType
	ResourceType *string
	ResourceID   *string
	Start        *time.Time
	End          *time.Time
}

// Event is one auditable occurrence to be recorded
type Event struct {
	Type         models.AuditEventType
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	Details      map[string]any
	Violations   []models.PolicyViolation
}

// Manager appends audit records and answers trail/report queries
type Manager struct {
	store   Store
	shipper Shipper // optional secondary destination (SIEM, file)
	now     func() time.Time
}

// NewManager builds a Manager. shipper may be nil.
func NewManager(store Store, shipper Shipper) *Manager {
	return &Manager{store: store, shipper: shipper, now: time.Now}
}

// LogEvent appends one audit record and returns its id. Persistence failure
// is wrapped in ErrAuditWrite; callers on the authorization path must treat
// it as fatal. Shipping to secondary destinations is best-effort and
// asynchronous.
func (m *Manager) LogEvent(ctx context.Context, event Event) (string, error) {
	entry := &models.AuditLog{
		AuditID:    uuid.New().String(),
		EventType:  event.Type,
		UserID:     event.UserID,
		Action:     event.Action,
		Timestamp:  m.now().UTC(),
		Details:    event.Details,
		Violations: event.Violations,
	}
	if event.ResourceType != "" {
		entry.ResourceType = &event.ResourceType
	}
	if event.ResourceID != "" {
		entry.ResourceID = &event.ResourceID
	}
	if event.IPAddress != "" {
		entry.IPAddress = &event.IPAddress
	}
	if event.UserAgent != "" {
		entry.UserAgent = &event.UserAgent
	}

	if err := m.store.Insert(ctx, entry); err != nil {
		telemetry.AuditWriteFailures.Inc()
		slog.Error("Audit write failed", "event_type", event.Type, "user_id", event.UserID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}

	if m.shipper != nil {
		shipped := *entry
		safego.Go(func() {
			shipCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.shipper.Ship(shipCtx, &shipped); err != nil {
				slog.Warn("Audit shipping failed", "audit_id", shipped.AuditID, "error", err)
			}
		})
	}

	return entry.AuditID, nil
}

// GetAuditTrail returns matching records newest-first. A non-positive limit
// falls back to DefaultTrailLimit.
func (m *Manager) GetAuditTrail(ctx context.Context, filters Filters, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 {
		limit = DefaultTrailLimit
	}
	entries, err := m.store.List(ctx, filters, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	return entries, nil
}

// ReportPeriod is the half-open window a compliance report covers
type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// UserActivity is one row of the most-active-users ranking
type UserActivity struct {
	UserID string `json:"user_id"`
	Events int    `json:"events"`
}

// ComplianceReport aggregates audit activity over a period
type ComplianceReport struct {
	Period          ReportPeriod             `json:"period"`
	TotalEvents     int                      `json:"total_events"`
	EventBreakdown  map[string]int           `json:"event_breakdown"`
	UserActivity    map[string]int           `json:"user_activity"`
	Violations      []models.PolicyViolation `json:"policy_violations"`
	MostActiveUsers []UserActivity           `json:"most_active_users"`
	GeneratedAt     time.Time                `json:"generated_at"`
}

// maxReportEvents caps how many records one report will aggregate
const maxReportEvents = 100000

// GenerateComplianceReport aggregates all events in [start, end): counts by
// event type and user, flattens policy violations, and ranks the ten most
// active users.
func (m *Manager) GenerateComplianceReport(ctx context.Context, start, end time.Time) (*ComplianceReport, error) {
	entries, err := m.store.List(ctx, Filters{Start: &start, End: &end}, maxReportEvents)
	if err != nil {
		return nil, fmt.Errorf("compliance report query: %w", err)
	}

	report := &ComplianceReport{
		Period:         ReportPeriod{Start: start, End: end},
		TotalEvents:    len(entries),
		EventBreakdown: make(map[string]int),
		UserActivity:   make(map[string]int),
		GeneratedAt:    m.now().UTC(),
	}

	for _, entry := range entries {
		report.EventBreakdown[string(entry.EventType)]++
		if entry.UserID != "" {
			report.UserActivity[entry.UserID]++
		}
		report.Violations = append(report.Violations, entry.Violations...)
	}

	ranked := make([]UserActivity, 0, len(report.UserActivity))
	for userID, count := range report.UserActivity {
		ranked = append(ranked, UserActivity{UserID: userID, Events: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Events != ranked[j].Events {
			return ranked[i].Events > ranked[j].Events
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	if len(ranked) > 10 {
		ranked = ranked[:10]
	}
	report.MostActiveUsers = ranked

	return report, nil
}
