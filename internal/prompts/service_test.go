package prompts

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/scope"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newStore() (*Service, *stepClock) {
	clock := &stepClock{t: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)}
	svc := NewService(NewMemoryRepo())
	svc.Now = clock.Now
	return svc, clock
}

func TestSetPromptAppendsVersions(t *testing.T) {
	svc, _ := newStore()
	ctx := context.Background()

	v1, err := svc.SetPrompt(ctx, scope.Group, "g1", "Summarize margins")
	if err != nil {
		t.Fatalf("SetPrompt: %v", err)
	}
	v2, err := svc.SetPrompt(ctx, scope.Group, "g1", "Summarize margins and guidance")
	if err != nil {
		t.Fatalf("SetPrompt: %v", err)
	}
	if v1.Version != 1 || v2.Version != 2 {
		t.Fatalf("unexpected versions %d %d", v1.Version, v2.Version)
	}
	if v2.Ref() != "group:g1:v2" {
		t.Fatalf("unexpected ref %s", v2.Ref())
	}

	active, err := svc.Active(ctx, scope.Group, "g1")
	if err != nil || active.Version != 2 {
		t.Fatalf("expected v2 active, got %+v %v", active, err)
	}

	history, _ := svc.History(ctx, scope.Group, "g1")
	if len(history) != 2 || history[0].Text != "Summarize margins" {
		t.Fatalf("history must keep prior versions unchanged: %+v", history)
	}

	if _, err := svc.SetPrompt(ctx, scope.Group, "g1", "   "); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClearPromptIsTombstone(t *testing.T) {
	svc, _ := newStore()
	ctx := context.Background()

	v1, _ := svc.SetPrompt(ctx, scope.Company, "infy", "Focus on deal wins")
	tomb, err := svc.ClearPrompt(ctx, scope.Company, "infy")
	if err != nil {
		t.Fatalf("ClearPrompt: %v", err)
	}
	if tomb.Version != 2 || !tomb.Cleared {
		t.Fatalf("unexpected tombstone %+v", tomb)
	}
	if _, err := svc.Active(ctx, scope.Company, "infy"); !errors.Is(err, ErrNoActivePrompt) {
		t.Fatalf("expected no active prompt, got %v", err)
	}

	// As of before the tombstone the first version was active.
	p, err := svc.ActiveAsOf(ctx, scope.Company, "infy", v1.CreatedAt)
	if err != nil || p.ID != v1.ID {
		t.Fatalf("expected v1 as of its creation, got %+v %v", p, err)
	}
}

func TestActiveAsOfIgnoresLaterVersions(t *testing.T) {
	svc, _ := newStore()
	ctx := context.Background()

	v1, _ := svc.SetPrompt(ctx, scope.Org, "org-1", "Default analysis")
	arrival := v1.CreatedAt.Add(30 * time.Second)
	_, _ = svc.SetPrompt(ctx, scope.Org, "org-1", "Edited after arrival")

	p, err := svc.ActiveAsOf(ctx, scope.Org, "org-1", arrival)
	if err != nil {
		t.Fatalf("ActiveAsOf: %v", err)
	}
	if p.Version != 1 {
		t.Fatalf("expected v1 as of arrival, got v%d", p.Version)
	}
	if _, err := svc.ActiveAsOf(ctx, scope.Org, "org-1", v1.CreatedAt.Add(-time.Second)); !errors.Is(err, ErrNoActivePrompt) {
		t.Fatalf("expected nothing before first version, got %v", err)
	}
}
