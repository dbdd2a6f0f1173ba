package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/consumer-registry/consumer-registry/internal/db/models"
)

var auditCols = []string{
	"id", "actor_id", "action", "resource_type", "resource_id",
	"old_stage", "new_stage", "reason", "metadata", "ip_address", "created_at",
}

func newAuditRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAuditRepository(db), mock
}

func TestCreateAuditLog_Success(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	actor := int64(7)
	old, next := "proposed", "approved"
	entry := &models.AuditLog{
		ActorID:  &actor,
		Action:   "consumer.approve",
		OldStage: &old,
		NewStage: &next,
		Reason:   "looks fine",
	}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID == "" {
		t.Error("Create should assign an id")
	}
}

func TestCreateAuditLog_DBError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnError(errDB)

	if err := repo.Create(context.Background(), &models.AuditLog{Action: "consumer.propose"}); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestListAuditLogs_ResourceFilter(t *testing.T) {
	repo, mock := newAuditRepo(t)
	old, next := "proposed", "rejected"
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_logs.*resource_type.*resource_id").
		WithArgs("consumer", "c-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM audit_logs.*ORDER BY created_at DESC").
		WithArgs("consumer", "c-1", 50, 0).
		WillReturnRows(sqlmock.NewRows(auditCols).
			AddRow("a-1", int64(7), "consumer.reject", "consumer", "c-1",
				&old, &next, "spam", []byte(`{"suppressed":true}`), "10.0.0.1", time.Now()))

	rtype, rid := "consumer", "c-1"
	entries, total, err := repo.List(context.Background(), AuditFilters{ResourceType: &rtype, ResourceID: &rid}, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(entries) != 1 {
		t.Fatalf("total = %d, len = %d, want 1, 1", total, len(entries))
	}
	if entries[0].Action != "consumer.reject" {
		t.Errorf("Action = %s, want consumer.reject", entries[0].Action)
	}
	if entries[0].Metadata["suppressed"] != true {
		t.Errorf("Metadata[suppressed] = %v, want true", entries[0].Metadata["suppressed"])
	}
}
