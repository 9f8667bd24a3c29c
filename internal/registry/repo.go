package registry

import (
	"context"
	"time"

	"transcript-backend/internal/shared/scope"
)

// Repo defines persistence operations for companies, groups and membership.
type Repo interface {
	CreateGroup(ctx context.Context, g Group) error
	GetGroup(ctx context.Context, groupID string) (Group, error)
	ListGroups(ctx context.Context, orgID string) ([]Group, error)
	DeleteGroup(ctx context.Context, groupID string) error
	// AddMember appends companyID to the group; added is false when already a member.
	AddMember(ctx context.Context, groupID, companyID string, at time.Time) (added bool, err error)
	RemoveMember(ctx context.Context, groupID, companyID string) (removed bool, err error)

	UpsertCompany(ctx context.Context, c Company) (Company, error)
	GetCompany(ctx context.Context, companyID string) (Company, error)
	ListCompanies(ctx context.Context, orgID string) ([]Company, error)
	// SearchCompanies matches query case-insensitively against name, ticker
	// and ISIN. Prefix matches sort first.
	SearchCompanies(ctx context.Context, orgID, query string, limit int) ([]Company, error)
	GroupsForCompany(ctx context.Context, companyID string) ([]Group, error)

	SetAutoEmail(ctx context.Context, target scope.Scope, id string, on bool, at time.Time) error
	SetRecipients(ctx context.Context, target scope.Scope, id string, recipients []string, at time.Time) error
}
