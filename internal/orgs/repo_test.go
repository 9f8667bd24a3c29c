package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
)

const seedYAML = `
organizations:
  - id: acme
    name: Acme Capital
    plan:
      name: pro
      period: monthly
      job_limit: 1000
    default_recipients: [research@acme.test]
  - id: beta
    name: Beta Partners
    plan:
      name: trial
      period: DAILY
      job_limit: 20
`

func TestParseSeedAndLookup(t *testing.T) {
	list, err := ParseSeed([]byte(seedYAML))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	repo := NewMemoryRepo(list...)

	acme, err := repo.Get(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if acme.Plan.JobLimit != 1000 || acme.Plan.Period != PeriodMonthly {
		t.Fatalf("unexpected plan %+v", acme.Plan)
	}
	if len(acme.DefaultRecipients) != 1 || acme.DefaultRecipients[0] != "research@acme.test" {
		t.Fatalf("unexpected recipients %v", acme.DefaultRecipients)
	}
	beta, _ := repo.Get(context.Background(), "beta")
	if beta.Plan.Period != PeriodDaily {
		t.Fatalf("expected normalized daily period, got %q", beta.Plan.Period)
	}

	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !repo.Exists("acme") || repo.Exists("nope") {
		t.Fatalf("Exists mismatch")
	}
}

func TestParseSeedRejectsInvalidPlan(t *testing.T) {
	_, err := ParseSeed([]byte("organizations:\n  - id: x\n    plan: {period: weekly, job_limit: 5}\n"))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlanPeriodID(t *testing.T) {
	ts := time.Date(2025, time.October, 3, 23, 30, 0, 0, time.UTC)
	if got := (Plan{Period: PeriodDaily}).PeriodID(ts); got != "2025-10-03" {
		t.Fatalf("daily period id = %s", got)
	}
	if got := (Plan{Period: PeriodMonthly}).PeriodID(ts); got != "2025-10" {
		t.Fatalf("monthly period id = %s", got)
	}
}
