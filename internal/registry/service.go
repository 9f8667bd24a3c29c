package registry

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/telemetry"
)

// Canceler cancels jobs that have not yet been claimed for a target. A non-empty
// companyID restricts cancellation to jobs about that company.
type Canceler interface {
	CancelPending(ctx context.Context, target scope.Scope, targetID, companyID string) (int, error)
}

// Service implements the group registry operations with organization scoping.
type Service struct {
	Repo     Repo
	Canceler Canceler
	Now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo, canceler Canceler) *Service {
	return &Service{Repo: repo, Canceler: canceler, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateGroupInput describes a new group.
type CreateGroupInput struct {
	ID                 string
	Kind               string
	Name               string
	Members            []string
	AutoEmail          bool
	Recipients         []string
	RequireAllReported bool
}

// CreateGroup validates and stores a group owned by orgID.
func (s *Service) CreateGroup(ctx context.Context, orgID string, in CreateGroupInput) (Group, error) {
	kind, err := ParseKind(in.Kind)
	if err != nil {
		return Group{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Group{}, apperr.Validationf("group name is required")
	}
	recipients, err := NormalizeRecipients(in.Recipients)
	if err != nil {
		return Group{}, err
	}
	members := make([]string, 0, len(in.Members))
	seen := make(map[string]struct{}, len(in.Members))
	for _, id := range in.Members {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, err := s.GetCompany(ctx, orgID, id); err != nil {
			return Group{}, err
		}
		members = append(members, id)
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()
	g := Group{
		ID:                 id,
		OrgID:              orgID,
		Kind:               kind,
		Name:               name,
		Members:            members,
		AutoEmail:          in.AutoEmail,
		Recipients:         recipients,
		RequireAllReported: in.RequireAllReported,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.Repo.CreateGroup(ctx, g); err != nil {
		return Group{}, errors.Wrap(err, "create group")
	}
	telemetry.Info("registry.group.created", map[string]any{
		telemetry.FieldOrgID:   orgID,
		telemetry.FieldGroupID: g.ID,
		"kind":                 string(kind),
		"members":              len(members),
	})
	return g, nil
}

// GetGroup returns a group visible to orgID.
func (s *Service) GetGroup(ctx context.Context, orgID, groupID string) (Group, error) {
	g, err := s.Repo.GetGroup(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if orgID != "" && g.OrgID != orgID {
		return Group{}, ErrGroupNotFound
	}
	return g, nil
}

// ListGroups returns the organization's groups.
func (s *Service) ListGroups(ctx context.Context, orgID string) ([]Group, error) {
	return s.Repo.ListGroups(ctx, orgID)
}

// DeleteGroup removes a group and cancels its pending jobs.
func (s *Service) DeleteGroup(ctx context.Context, orgID, groupID string) error {
	if _, err := s.GetGroup(ctx, orgID, groupID); err != nil {
		return err
	}
	if err := s.Repo.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	s.cancelPending(ctx, scope.Group, groupID, "")
	telemetry.Info("registry.group.deleted", map[string]any{
		telemetry.FieldOrgID:   orgID,
		telemetry.FieldGroupID: groupID,
	})
	return nil
}

// AddCompany adds a company to a group. Adding an existing member is a no-op.
func (s *Service) AddCompany(ctx context.Context, orgID, groupID, companyID string) (Group, error) {
	if _, err := s.GetGroup(ctx, orgID, groupID); err != nil {
		return Group{}, err
	}
	if _, err := s.GetCompany(ctx, orgID, companyID); err != nil {
		return Group{}, err
	}
	added, err := s.Repo.AddMember(ctx, groupID, companyID, s.now())
	if err != nil {
		return Group{}, err
	}
	if added {
		telemetry.Info("registry.member.added", map[string]any{
			telemetry.FieldGroupID:   groupID,
			telemetry.FieldCompanyID: companyID,
		})
	}
	return s.Repo.GetGroup(ctx, groupID)
}

// RemoveCompany removes a company from a group and cancels the group's pending
// jobs about that company.
func (s *Service) RemoveCompany(ctx context.Context, orgID, groupID, companyID string) (Group, error) {
	if _, err := s.GetGroup(ctx, orgID, groupID); err != nil {
		return Group{}, err
	}
	removed, err := s.Repo.RemoveMember(ctx, groupID, companyID)
	if err != nil {
		return Group{}, err
	}
	if !removed {
		return Group{}, errors.Wrapf(ErrCompanyNotFound, "company %s is not a member of group %s", companyID, groupID)
	}
	s.cancelPending(ctx, scope.Group, groupID, companyID)
	telemetry.Info("registry.member.removed", map[string]any{
		telemetry.FieldGroupID:   groupID,
		telemetry.FieldCompanyID: companyID,
	})
	return s.Repo.GetGroup(ctx, groupID)
}

// ListMembers returns the group's member companies in membership order.
func (s *Service) ListMembers(ctx context.Context, orgID, groupID string) ([]Company, error) {
	g, err := s.GetGroup(ctx, orgID, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]Company, 0, len(g.Members))
	for _, id := range g.Members {
		c, err := s.Repo.GetCompany(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "member %s", id)
		}
		out = append(out, c)
	}
	return out, nil
}

// UpsertCompanyInput describes a company to create or update.
type UpsertCompanyInput struct {
	ID         string
	Name       string
	Ticker     string
	ISIN       string
	AutoEmail  bool
	Recipients []string
}

// UpsertCompany creates or updates a company owned by orgID.
func (s *Service) UpsertCompany(ctx context.Context, orgID string, in UpsertCompanyInput) (Company, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Company{}, apperr.Validationf("company name is required")
	}
	recipients, err := NormalizeRecipients(in.Recipients)
	if err != nil {
		return Company{}, err
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	} else if existing, err := s.Repo.GetCompany(ctx, id); err == nil && existing.OrgID != orgID {
		return Company{}, errors.Wrapf(apperr.ErrConflict, "company %s belongs to another organization", id)
	}
	now := s.now()
	return s.Repo.UpsertCompany(ctx, Company{
		ID:         id,
		OrgID:      orgID,
		Name:       name,
		Ticker:     strings.ToUpper(strings.TrimSpace(in.Ticker)),
		ISIN:       strings.ToUpper(strings.TrimSpace(in.ISIN)),
		AutoEmail:  in.AutoEmail,
		Recipients: recipients,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// GetCompany returns a company visible to orgID. An empty orgID skips the tenant check.
func (s *Service) GetCompany(ctx context.Context, orgID, companyID string) (Company, error) {
	c, err := s.Repo.GetCompany(ctx, companyID)
	if err != nil {
		return Company{}, err
	}
	if orgID != "" && c.OrgID != orgID {
		return Company{}, ErrCompanyNotFound
	}
	return c, nil
}

// ListCompanies returns the organization's companies.
func (s *Service) ListCompanies(ctx context.Context, orgID string) ([]Company, error) {
	return s.Repo.ListCompanies(ctx, orgID)
}

// SearchCompanies finds the organization's companies by name, ticker or ISIN.
func (s *Service) SearchCompanies(ctx context.Context, orgID, query string, limit int) ([]Company, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validationf("search query is required")
	}
	if limit <= 0 || limit > MaxSearchResults {
		limit = MaxSearchResults
	}
	return s.Repo.SearchCompanies(ctx, orgID, query, limit)
}

// SearchGroups returns the organization's groups whose name contains query.
func (s *Service) SearchGroups(ctx context.Context, orgID, query string) ([]Group, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, apperr.Validationf("search query is required")
	}
	groups, err := s.Repo.ListGroups(ctx, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]Group, 0)
	for _, g := range groups {
		if strings.Contains(strings.ToLower(g.Name), query) {
			out = append(out, g)
		}
	}
	return out, nil
}

// GroupsForCompany returns the groups a company currently belongs to.
func (s *Service) GroupsForCompany(ctx context.Context, companyID string) ([]Group, error) {
	return s.Repo.GroupsForCompany(ctx, companyID)
}

// SetAutoEmail toggles result emails for a group or company.
func (s *Service) SetAutoEmail(ctx context.Context, orgID string, target scope.Scope, id string, on bool) error {
	if err := s.checkOwner(ctx, orgID, target, id); err != nil {
		return err
	}
	return s.Repo.SetAutoEmail(ctx, target, id, on, s.now())
}

// SetRecipients replaces the recipient list of a group or company.
func (s *Service) SetRecipients(ctx context.Context, orgID string, target scope.Scope, id string, list []string) ([]string, error) {
	if err := s.checkOwner(ctx, orgID, target, id); err != nil {
		return nil, err
	}
	recipients, err := NormalizeRecipients(list)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.SetRecipients(ctx, target, id, recipients, s.now()); err != nil {
		return nil, err
	}
	return recipients, nil
}

func (s *Service) checkOwner(ctx context.Context, orgID string, target scope.Scope, id string) error {
	switch target {
	case scope.Group:
		_, err := s.GetGroup(ctx, orgID, id)
		return err
	case scope.Company:
		_, err := s.GetCompany(ctx, orgID, id)
		return err
	default:
		return apperr.Validationf("scope %q has no settings", target)
	}
}

func (s *Service) cancelPending(ctx context.Context, target scope.Scope, id, companyID string) {
	if s.Canceler == nil {
		return
	}
	n, err := s.Canceler.CancelPending(ctx, target, id, companyID)
	if err != nil {
		telemetry.Error("registry.cancel_pending.failed", map[string]any{
			"target_scope":       string(target),
			"target_id":          id,
			telemetry.FieldError: err.Error(),
		})
		return
	}
	if n > 0 {
		telemetry.Info("registry.cancel_pending", map[string]any{
			"target_scope": string(target),
			"target_id":    id,
			"canceled":     n,
		})
	}
}

// NormalizeRecipients trims, validates and de-duplicates addresses case-insensitively,
// keeping the first spelling of each.
func NormalizeRecipients(list []string) ([]string, error) {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, raw := range list {
		addr := strings.TrimSpace(raw)
		if addr == "" {
			continue
		}
		parsed, err := mail.ParseAddress(addr)
		if err != nil {
			return nil, apperr.Validationf("invalid recipient %q", addr)
		}
		key := strings.ToLower(parsed.Address)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, parsed.Address)
	}
	return out, nil
}
