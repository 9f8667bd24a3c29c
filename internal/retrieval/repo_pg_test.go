package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoAppendTurnAssignsSeq(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	at := time.Date(2025, 10, 17, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO ask_turns").
		WithArgs("s-1", "q", "a", at).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(3))

	repo := &PGRepo{DB: db}
	turn, err := repo.AppendTurn(context.Background(), "s-1", Turn{Question: "q", Answer: "a", AskedAt: at})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if turn.Seq != 3 {
		t.Fatalf("seq = %d", turn.Seq)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetLoadsTurns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	at := time.Date(2025, 10, 17, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM ask_sessions").WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "scope", "target_id", "k", "include_sector_outputs", "created_at"}).
			AddRow("s-1", "org-1", "group", "w1", 4, false, at))
	mock.ExpectQuery("FROM ask_turns").WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "question", "answer", "asked_at"}).
			AddRow(1, "q1", "a1", at).
			AddRow(2, "q2", "a2", at.Add(time.Minute)))

	repo := &PGRepo{DB: db}
	s, err := repo.Get(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Scope != "group" || len(s.Turns) != 2 || s.Turns[1].Question != "q2" {
		t.Fatalf("unexpected session %+v", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
