package repositories

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newStatsRepo(t *testing.T) (*StatsRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStatsRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestConsumerCountsByStage(t *testing.T) {
	repo, mock := newStatsRepo(t)
	mock.ExpectQuery("SELECT stage, COUNT\\(\\*\\).*GROUP BY stage").
		WillReturnRows(sqlmock.NewRows([]string{"stage", "count"}).
			AddRow("proposed", 4).
			AddRow("approved", 10).
			AddRow("disabled", 1))

	counts, err := repo.ConsumerCountsByStage(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["approved"] != 10 {
		t.Errorf("approved = %d, want 10", counts["approved"])
	}
	if counts["proposed"] != 4 {
		t.Errorf("proposed = %d, want 4", counts["proposed"])
	}
}

func TestActiveTokenCount(t *testing.T) {
	repo, mock := newStatsRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM oauth_access_tokens").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.ActiveTokenCount(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 7 {
		t.Errorf("count = %d, want 7", count)
	}
}

func TestSuppressedConsumerCount(t *testing.T) {
	repo, mock := newStatsRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM oauth_consumers WHERE suppressed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.SuppressedConsumerCount(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}
