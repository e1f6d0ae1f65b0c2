package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/leadpilot/governance/internal/audit"
	"github.com/leadpilot/governance/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var auditCols = []string{
	"audit_id", "event_type", "user_id", "resource_type", "resource_id",
	"action", "timestamp", "ip_address", "user_agent", "details", "policy_violations",
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newAuditRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAuditRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleAuditRow() *sqlmock.Rows {
	return sqlmock.NewRows(auditCols).
		AddRow("a-1", "data_access", "rep-1", "lead", "lead-42", "read",
			time.Now(), "203.0.113.7", "curl/8.0", []byte(`{"fields":["email"]}`), []byte(`[]`))
}

// ---------------------------------------------------------------------------
// Insert
// ---------------------------------------------------------------------------

func TestInsertAuditLog_Success(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.AuditLog{
		AuditID:   "a-1",
		EventType: models.EventDataAccess,
		UserID:    "rep-1",
		Action:    "read",
		Timestamp: time.Now().UTC(),
		Details:   map[string]any{"fields": []string{"email"}},
	}
	if err := repo.Insert(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInsertAuditLog_NilPayloadsGetJSONDefaults(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			[]byte(`{}`), []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.AuditLog{
		AuditID:   "a-2",
		EventType: models.EventUserLogin,
		UserID:    "rep-1",
		Action:    "login",
		Timestamp: time.Now().UTC(),
	}
	if err := repo.Insert(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInsertAuditLog_DBError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnError(errDB)

	entry := &models.AuditLog{AuditID: "a-1", Action: "read"}
	if err := repo.Insert(context.Background(), entry); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestListAuditLogs_NoFilters(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT audit_id.*FROM audit_logs").
		WithArgs(50).
		WillReturnRows(sampleAuditRow())

	entries, err := repo.List(context.Background(), audit.Filters{}, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if entries[0].AuditID != "a-1" {
		t.Errorf("AuditID = %q", entries[0].AuditID)
	}
	if entries[0].Details["fields"] == nil {
		t.Errorf("details not decoded: %v", entries[0].Details)
	}
}

func TestListAuditLogs_FiltersBecomeNumberedArgs(t *testing.T) {
	repo, mock := newAuditRepo(t)
	userID := "rep-1"
	eventType := models.EventUserLogin
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT audit_id.*FROM audit_logs.*WHERE user_id").
		WithArgs(userID, "user_login", start, 10).
		WillReturnRows(sqlmock.NewRows(auditCols))

	entries, err := repo.List(context.Background(), audit.Filters{
		UserID:    &userID,
		EventType: &eventType,
		Start:     &start,
	}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len = %d, want 0", len(entries))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListAuditLogs_QueryError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT audit_id.*FROM audit_logs").
		WillReturnError(errDB)

	if _, err := repo.List(context.Background(), audit.Filters{}, 50); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestListAuditLogs_MalformedDetails(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT audit_id.*FROM audit_logs").
		WillReturnRows(sqlmock.NewRows(auditCols).
			AddRow("a-1", "data_access", "rep-1", nil, nil, "read",
				time.Now(), nil, nil, []byte(`not json`), []byte(`[]`)))

	if _, err := repo.List(context.Background(), audit.Filters{}, 50); err == nil {
		t.Error("expected decode error, got nil")
	}
}
