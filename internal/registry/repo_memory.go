package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/scope"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu        sync.RWMutex
	groups    map[string]Group
	companies map[string]Company
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		groups:    make(map[string]Group),
		companies: make(map[string]Company),
	}
}

func cloneGroup(g Group) Group {
	g.Members = append([]string(nil), g.Members...)
	g.Recipients = append([]string(nil), g.Recipients...)
	return g
}

func cloneCompany(c Company) Company {
	c.Recipients = append([]string(nil), c.Recipients...)
	return c
}

// CreateGroup stores a new group.
func (r *MemoryRepo) CreateGroup(ctx context.Context, g Group) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.groups[g.ID]; exists {
		return apperr.ErrConflict
	}
	r.groups[g.ID] = cloneGroup(g)
	return nil
}

// GetGroup returns a group with its members in insertion order.
func (r *MemoryRepo) GetGroup(ctx context.Context, groupID string) (Group, error) {
	if err := ctx.Err(); err != nil {
		return Group{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupID]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	return cloneGroup(g), nil
}

// ListGroups returns the organization's groups ordered by name.
func (r *MemoryRepo) ListGroups(ctx context.Context, orgID string) ([]Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Group, 0)
	for _, g := range r.groups {
		if g.OrgID == orgID {
			out = append(out, cloneGroup(g))
		}
	}
	sortGroups(out)
	return out, nil
}

// DeleteGroup removes a group and its membership.
func (r *MemoryRepo) DeleteGroup(ctx context.Context, groupID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[groupID]; !ok {
		return ErrGroupNotFound
	}
	delete(r.groups, groupID)
	return nil
}

// AddMember appends a company to a group.
func (r *MemoryRepo) AddMember(ctx context.Context, groupID, companyID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return false, ErrGroupNotFound
	}
	if _, ok := r.companies[companyID]; !ok {
		return false, ErrCompanyNotFound
	}
	if g.HasMember(companyID) {
		return false, nil
	}
	g.Members = append(g.Members, companyID)
	g.UpdatedAt = at
	r.groups[groupID] = g
	return true, nil
}

// RemoveMember drops a company from a group.
func (r *MemoryRepo) RemoveMember(ctx context.Context, groupID, companyID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return false, ErrGroupNotFound
	}
	for i, m := range g.Members {
		if m == companyID {
			members := make([]string, 0, len(g.Members)-1)
			members = append(members, g.Members[:i]...)
			members = append(members, g.Members[i+1:]...)
			g.Members = members
			r.groups[groupID] = g
			return true, nil
		}
	}
	return false, nil
}

// UpsertCompany creates or updates a company, preserving CreatedAt.
func (r *MemoryRepo) UpsertCompany(ctx context.Context, c Company) (Company, error) {
	if err := ctx.Err(); err != nil {
		return Company{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.companies[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	r.companies[c.ID] = cloneCompany(c)
	return cloneCompany(c), nil
}

// GetCompany returns a company by id.
func (r *MemoryRepo) GetCompany(ctx context.Context, companyID string) (Company, error) {
	if err := ctx.Err(); err != nil {
		return Company{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[companyID]
	if !ok {
		return Company{}, ErrCompanyNotFound
	}
	return cloneCompany(c), nil
}

// ListCompanies returns the organization's companies ordered by name.
func (r *MemoryRepo) ListCompanies(ctx context.Context, orgID string) ([]Company, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Company, 0)
	for _, c := range r.companies {
		if c.OrgID == orgID {
			out = append(out, cloneCompany(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SearchCompanies returns up to limit companies whose name, ticker or ISIN
// contains query, prefix matches first.
func (r *MemoryRepo) SearchCompanies(ctx context.Context, orgID, query string, limit int) ([]Company, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	r.mu.RLock()
	type hit struct {
		c      Company
		prefix bool
	}
	hits := make([]hit, 0)
	for _, c := range r.companies {
		if c.OrgID != orgID {
			continue
		}
		matched, prefix := false, false
		for _, field := range []string{c.Name, c.Ticker, c.ISIN} {
			f := strings.ToLower(field)
			if strings.Contains(f, q) {
				matched = true
				prefix = prefix || strings.HasPrefix(f, q)
			}
		}
		if matched {
			hits = append(hits, hit{c: cloneCompany(c), prefix: prefix})
		}
	}
	r.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].prefix != hits[j].prefix {
			return hits[i].prefix
		}
		if hits[i].c.Name != hits[j].c.Name {
			return hits[i].c.Name < hits[j].c.Name
		}
		return hits[i].c.ID < hits[j].c.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Company, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.c)
	}
	return out, nil
}

// GroupsForCompany returns every group the company currently belongs to.
func (r *MemoryRepo) GroupsForCompany(ctx context.Context, companyID string) ([]Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Group, 0)
	for _, g := range r.groups {
		if g.HasMember(companyID) {
			out = append(out, cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetAutoEmail toggles result emails for a group or company.
func (r *MemoryRepo) SetAutoEmail(ctx context.Context, target scope.Scope, id string, on bool, at time.Time) error {
	return r.update(ctx, target, id, func(g *Group) {
		g.AutoEmail = on
		g.UpdatedAt = at
	}, func(c *Company) {
		c.AutoEmail = on
		c.UpdatedAt = at
	})
}

// SetRecipients replaces the recipient list of a group or company.
func (r *MemoryRepo) SetRecipients(ctx context.Context, target scope.Scope, id string, recipients []string, at time.Time) error {
	list := append([]string(nil), recipients...)
	return r.update(ctx, target, id, func(g *Group) {
		g.Recipients = list
		g.UpdatedAt = at
	}, func(c *Company) {
		c.Recipients = list
		c.UpdatedAt = at
	})
}

func (r *MemoryRepo) update(ctx context.Context, target scope.Scope, id string, onGroup func(*Group), onCompany func(*Company)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch target {
	case scope.Group:
		g, ok := r.groups[id]
		if !ok {
			return ErrGroupNotFound
		}
		onGroup(&g)
		r.groups[id] = g
	case scope.Company:
		c, ok := r.companies[id]
		if !ok {
			return ErrCompanyNotFound
		}
		onCompany(&c)
		r.companies[id] = c
	default:
		return apperr.Validationf("scope %q has no settings", target)
	}
	return nil
}

func sortGroups(out []Group) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
}
