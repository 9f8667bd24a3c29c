package distribution

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoClaimOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	at := time.Now().UTC()
	mock.ExpectExec("INSERT INTO email_dispatches").
		WithArgs("job-1", `["pm@fund.com"]`, "subj", StatusPending, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO email_dispatches").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &PGRepo{DB: db}
	d := Dispatch{JobID: "job-1", Recipients: []string{"pm@fund.com"}, Subject: "subj", Status: StatusPending, CreatedAt: at}
	if ok, err := repo.Claim(context.Background(), d); err != nil || !ok {
		t.Fatalf("first Claim = %v, %v", ok, err)
	}
	if ok, err := repo.Claim(context.Background(), d); err != nil || ok {
		t.Fatalf("second Claim = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
