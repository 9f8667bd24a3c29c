package quota

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreIncrementAtLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO quota_counters").
		WithArgs("org-1", "2025-10", 1000, at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count, updated_at FROM quota_counters .* FOR UPDATE").
		WithArgs("org-1", "2025-10").
		WillReturnRows(sqlmock.NewRows([]string{"count", "updated_at"}).AddRow(1000, at))
	mock.ExpectCommit()

	c, ok, err := NewPGStore(db).Increment(context.Background(), "org-1", "2025-10", 1000, at)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if ok || c.Count != 1000 {
		t.Fatalf("expected no increment at limit, got %+v ok=%v", c, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreIncrementBelowLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO quota_counters").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"count", "updated_at"}).AddRow(999, at))
	mock.ExpectExec("UPDATE quota_counters").
		WithArgs("org-1", "2025-10", 1000, 1000, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, ok, err := NewPGStore(db).Increment(context.Background(), "org-1", "2025-10", 1000, at)
	if err != nil || !ok || c.Count != 1000 {
		t.Fatalf("Increment = %+v %v %v", c, ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
