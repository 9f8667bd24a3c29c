package transcripts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/storage/object/local"
)

func TestRecordIsIdempotent(t *testing.T) {
	svc := NewService(NewMemoryRepo(), local.New(t.TempDir()))
	ctx := context.Background()
	at := time.Date(2025, 10, 17, 9, 0, 0, 0, time.UTC)

	first, created, err := svc.Record(ctx, Transcript{CompanyID: "infy", Period: "Q2FY26", DocumentRef: "a.pdf", ReceivedAt: at})
	if err != nil || !created {
		t.Fatalf("first Record: %v created=%v", err, created)
	}
	again, created, err := svc.Record(ctx, Transcript{CompanyID: "infy", Period: "Q2FY26", DocumentRef: "b.pdf", ReceivedAt: at.Add(time.Hour)})
	if err != nil || created {
		t.Fatalf("duplicate Record: %v created=%v", err, created)
	}
	if again.DocumentRef != first.DocumentRef {
		t.Fatalf("first arrival must win, got %s", again.DocumentRef)
	}

	if _, _, err := svc.Record(ctx, Transcript{CompanyID: "infy"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLatestAndListForPeriod(t *testing.T) {
	svc := NewService(NewMemoryRepo(), local.New(t.TempDir()))
	ctx := context.Background()
	for _, tr := range []Transcript{
		{CompanyID: "infy", Period: "Q1FY26", DocumentRef: "1"},
		{CompanyID: "infy", Period: "Q2FY26", DocumentRef: "2"},
		{CompanyID: "tcs", Period: "Q2FY26", DocumentRef: "3"},
	} {
		if _, _, err := svc.Record(ctx, tr); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	latest, err := svc.Latest(ctx, "infy")
	if err != nil || latest.Period != "Q2FY26" {
		t.Fatalf("Latest = %+v, %v", latest, err)
	}
	if _, err := svc.Latest(ctx, "wipro"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	list, _ := svc.ListForPeriod(ctx, []string{"tcs", "infy", "wipro"}, "Q2FY26")
	if len(list) != 2 || list[0].CompanyID != "tcs" || list[1].CompanyID != "infy" {
		t.Fatalf("unexpected period listing %+v", list)
	}
}

func TestLoadTextTruncatesAndFlagsMissingDocuments(t *testing.T) {
	store := local.New(t.TempDir())
	svc := NewService(NewMemoryRepo(), store)
	svc.MaxChars = 10
	ctx := context.Background()

	key, err := svc.SaveDocument(ctx, "infy", "q2fy26.txt", strings.NewReader("Revenue grew twelve percent"))
	if err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	text, err := svc.LoadText(ctx, Transcript{CompanyID: "infy", Period: "Q2FY26", DocumentRef: key})
	if err != nil {
		t.Fatalf("LoadText: %v", err)
	}
	if text != "Revenue gr" {
		t.Fatalf("expected truncated text, got %q", text)
	}

	_, err = svc.LoadText(ctx, Transcript{CompanyID: "infy", Period: "Q3FY26", DocumentRef: "transcripts/gone.pdf"})
	if !errors.Is(err, apperr.ErrPermanent) {
		t.Fatalf("expected permanent error for missing document, got %v", err)
	}
}
