package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGDeadLettersRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	at := time.Date(2025, 10, 17, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO dead_letters").
		WithArgs("dl-1", sqlmock.AnyArg(), ReasonUnknownCompany, "company not found", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rows := sqlmock.NewRows([]string{"id", "arrival", "reason", "error", "created_at"}).
		AddRow("dl-1", []byte(`{"companyId":"ghost","period":"Q2FY26","documentRef":"x.pdf","receivedAt":"2025-10-17T09:00:00Z"}`), ReasonUnknownCompany, "company not found", at)
	mock.ExpectQuery("SELECT id, arrival, reason, error, created_at").WithArgs(10).WillReturnRows(rows)

	repo := &PGDeadLetters{DB: db}
	d := DeadLetter{ID: "dl-1", Arrival: Arrival{CompanyID: "ghost", Period: "Q2FY26", DocumentRef: "x.pdf", ReceivedAt: at}, Reason: ReasonUnknownCompany, Error: "company not found", CreatedAt: at}
	if err := repo.Add(context.Background(), d); err != nil {
		t.Fatalf("Add: %v", err)
	}
	list, err := repo.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Arrival.CompanyID != "ghost" {
		t.Fatalf("unexpected list %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
