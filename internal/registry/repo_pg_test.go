package registry

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/scope"
)

func TestPGRepoGetGroupLoadsOrderedMembers(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, org_id, kind, name").
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "kind", "name", "auto_email", "recipients", "require_all_reported", "created_at", "updated_at"}).
			AddRow("g1", "org-1", "watchlist", "Core IT", true, []byte(`["pm@fund.test"]`), true, now, now))
	mock.ExpectQuery("SELECT company_id FROM group_members").
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"company_id"}).AddRow("infy").AddRow("tcs"))

	g, err := repo.GetGroup(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if !g.Gated() || len(g.Members) != 2 || g.Members[1] != "tcs" {
		t.Fatalf("unexpected group %+v", g)
	}
	if len(g.Recipients) != 1 || g.Recipients[0] != "pm@fund.test" {
		t.Fatalf("unexpected recipients %v", g.Recipients)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoDeleteGroupMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("DELETE FROM groups").WithArgs("g9").WillReturnResult(sqlmock.NewResult(0, 0))

	err = (&PGRepo{DB: db}).DeleteGroup(context.Background(), "g9")
	if !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestPGRepoSetAutoEmailTargetsTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE companies SET auto_email").
		WithArgs("infy", true, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := (&PGRepo{DB: db}).SetAutoEmail(context.Background(), scope.Company, "infy", true, at); err != nil {
		t.Fatalf("SetAutoEmail: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSearchCompaniesEscapesWildcards(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, org_id, name, ticker, isin").
		WithArgs("org-1", `%50\%%`, `50\%%`, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "ticker", "isin", "auto_email", "recipients", "created_at", "updated_at"}).
			AddRow("fifty", "org-1", "50% Holdings", "FIFTY", "", false, []byte(`[]`), now, now))

	got, err := (&PGRepo{DB: db}).SearchCompanies(context.Background(), "org-1", "50%", 20)
	if err != nil {
		t.Fatalf("SearchCompanies: %v", err)
	}
	if len(got) != 1 || got[0].ID != "fifty" {
		t.Fatalf("unexpected companies %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
