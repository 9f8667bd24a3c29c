package prompts

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/scope"
)

type fixture struct {
	store    *Service
	resolver *Resolver
	registry *registry.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store, _ := newStore()
	reg := registry.NewService(registry.NewMemoryRepo(), nil)
	for _, c := range []registry.UpsertCompanyInput{
		{ID: "infy", Name: "Infosys", Ticker: "INFY"},
		{ID: "tcs", Name: "Tata Consultancy", Ticker: "TCS"},
		{ID: "solo", Name: "Solo Corp", Ticker: "SOLO"},
	} {
		if _, err := reg.UpsertCompany(ctx, "org-1", c); err != nil {
			t.Fatalf("UpsertCompany: %v", err)
		}
	}
	if _, err := reg.CreateGroup(ctx, "org-1", registry.CreateGroupInput{ID: "w1", Name: "Watchlist1", Members: []string{"infy", "tcs"}, RequireAllReported: true}); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := reg.CreateGroup(ctx, "org-1", registry.CreateGroupInput{ID: "s1", Name: "IT", Kind: "sector", Members: []string{"infy"}}); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	return fixture{store: store, resolver: NewResolver(store, reg), registry: reg}
}

func TestResolveOverrideReplacesGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.store.SetPrompt(ctx, scope.Group, "w1", "P_w")
	_, _ = f.store.SetPrompt(ctx, scope.Group, "s1", "P_s")
	override, _ := f.store.SetPrompt(ctx, scope.Company, "infy", "Infosys override")

	got, err := f.resolver.Resolve(ctx, "infy", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 1 || got[0].Target != scope.Company || got[0].Prompt.ID != override.ID {
		t.Fatalf("expected only the override, got %+v", got)
	}
}

func TestResolveOneJobPerActiveGroupPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.store.SetPrompt(ctx, scope.Org, "org-1", "Default")
	_, _ = f.store.SetPrompt(ctx, scope.Group, "w1", "P_w")
	_, _ = f.store.SetPrompt(ctx, scope.Group, "s1", "P_s")

	asOf := time.Now().Add(time.Hour)
	first, err := f.resolver.Resolve(ctx, "infy", asOf)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(first) != 2 || first[0].TargetID != "s1" || first[1].TargetID != "w1" {
		t.Fatalf("expected sorted group pairs, got %+v", first)
	}
	again, _ := f.resolver.Resolve(ctx, "infy", asOf)
	for i := range first {
		if first[i].Prompt.ID != again[i].Prompt.ID {
			t.Fatalf("resolve must be deterministic")
		}
	}

	// Clearing a group prompt drops that pair on the next evaluation.
	_, _ = f.store.ClearPrompt(ctx, scope.Group, "s1")
	after, _ := f.resolver.Resolve(ctx, "infy", time.Now().Add(2*time.Hour))
	if len(after) != 1 || after[0].TargetID != "w1" {
		t.Fatalf("expected only w1 after clearing s1, got %+v", after)
	}
}

func TestResolveFallsBackToOrgDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	none, err := f.resolver.Resolve(ctx, "solo", time.Now())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no pairs without any prompt, got %+v", none)
	}

	def, _ := f.store.SetPrompt(ctx, scope.Org, "org-1", "Default")
	got, _ := f.resolver.Resolve(ctx, "solo", time.Now().Add(time.Hour))
	if len(got) != 1 || got[0].Target != scope.Org || got[0].TargetID != "org-1" || got[0].Prompt.ID != def.ID {
		t.Fatalf("expected org default, got %+v", got)
	}
}

func TestResolveUnknownCompany(t *testing.T) {
	f := newFixture(t)
	if _, err := f.resolver.Resolve(context.Background(), "ghost", time.Now()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHasOverrideHonorsTombstone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if ok, err := f.resolver.HasOverride(ctx, "infy", time.Time{}); err != nil || ok {
		t.Fatalf("expected no override, got %v %v", ok, err)
	}
	_, _ = f.store.SetPrompt(ctx, scope.Company, "infy", "override")
	if ok, _ := f.resolver.HasOverride(ctx, "infy", time.Time{}); !ok {
		t.Fatalf("expected active override")
	}
	_, _ = f.store.ClearPrompt(ctx, scope.Company, "infy")
	if ok, _ := f.resolver.HasOverride(ctx, "infy", time.Time{}); ok {
		t.Fatalf("expected cleared override to be inactive")
	}
}
