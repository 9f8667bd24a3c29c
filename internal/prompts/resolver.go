package prompts

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/scope"
)

// Directory is the registry view the resolver needs.
type Directory interface {
	GetCompany(ctx context.Context, orgID, companyID string) (registry.Company, error)
	GroupsForCompany(ctx context.Context, companyID string) ([]registry.Group, error)
}

// Resolver decides which prompts apply to a company. It reads the store on every
// call so edits take effect for the next arrival.
type Resolver struct {
	Store     *Service
	Directory Directory
}

// NewResolver constructs a Resolver.
func NewResolver(store *Service, dir Directory) *Resolver {
	return &Resolver{Store: store, Directory: dir}
}

// Resolve returns the (prompt, target) pairs for companyID as of asOf:
// an active company override alone; otherwise one pair per member group with an
// active group prompt; otherwise the organization default.
func (r *Resolver) Resolve(ctx context.Context, companyID string, asOf time.Time) ([]Resolution, error) {
	company, err := r.Directory.GetCompany(ctx, "", companyID)
	if err != nil {
		return nil, err
	}

	override, ok, err := activeOrNone(r.Store.ActiveAsOf(ctx, scope.Company, company.ID, asOf))
	if err != nil {
		return nil, errors.Wrap(err, "company override")
	}
	if ok {
		return []Resolution{{Prompt: override, Target: scope.Company, TargetID: company.ID}}, nil
	}

	groups, err := r.Directory.GroupsForCompany(ctx, company.ID)
	if err != nil {
		return nil, errors.Wrap(err, "groups for company")
	}
	out := make([]Resolution, 0, len(groups))
	for _, g := range groups {
		p, ok, err := activeOrNone(r.Store.ActiveAsOf(ctx, scope.Group, g.ID, asOf))
		if err != nil {
			return nil, errors.Wrapf(err, "group prompt %s", g.ID)
		}
		if ok {
			out = append(out, Resolution{Prompt: p, Target: scope.Group, TargetID: g.ID})
		}
	}
	if len(out) > 0 {
		sortResolutions(out)
		return out, nil
	}

	def, ok, err := activeOrNone(r.Store.ActiveAsOf(ctx, scope.Org, company.OrgID, asOf))
	if err != nil {
		return nil, errors.Wrap(err, "org default prompt")
	}
	if ok {
		out = append(out, Resolution{Prompt: def, Target: scope.Org, TargetID: company.OrgID})
	}
	return out, nil
}

// ResolveTarget returns the active prompt a manual run against target uses.
// Company runs honor the override then the org default; group runs use the group prompt.
func (r *Resolver) ResolveTarget(ctx context.Context, orgID string, target scope.Scope, targetID string, asOf time.Time) (Prompt, error) {
	switch target {
	case scope.Company:
		p, ok, err := activeOrNone(r.Store.ActiveAsOf(ctx, scope.Company, targetID, asOf))
		if err != nil || ok {
			return p, err
		}
		return r.Store.ActiveAsOf(ctx, scope.Org, orgID, asOf)
	case scope.Group:
		return r.Store.ActiveAsOf(ctx, scope.Group, targetID, asOf)
	default:
		return r.Store.ActiveAsOf(ctx, scope.Org, orgID, asOf)
	}
}

// HasOverride reports whether the company has an active override as of asOf.
func (r *Resolver) HasOverride(ctx context.Context, companyID string, asOf time.Time) (bool, error) {
	_, ok, err := activeOrNone(r.Store.ActiveAsOf(ctx, scope.Company, companyID, asOf))
	return ok, err
}

func sortResolutions(out []Resolution) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target.Rank() < out[j].Target.Rank()
		}
		return out[i].TargetID < out[j].TargetID
	})
}
