package jobs

import (
	"context"
	"time"

	"transcript-backend/internal/shared/scope"
)

// Repo persists analysis jobs.
type Repo interface {
	// CreateIfAbsent inserts j unless its idempotency key exists; it returns the
	// stored job and whether this call created it.
	CreateIfAbsent(ctx context.Context, j Job) (Job, bool, error)
	Get(ctx context.Context, id string) (Job, error)
	GetByKey(ctx context.Context, key string) (Job, error)
	// Transition moves the job to status `to` if allowed from its current status,
	// applying mutate to the copy first. The write is conditional on the status
	// it was read with.
	Transition(ctx context.Context, id string, to Status, at time.Time, mutate func(*Job)) (Job, error)
	// MarkAdmitted records the quota period once; it reports false if already set.
	MarkAdmitted(ctx context.Context, id, periodID string, at time.Time) (bool, error)
	ListByCompany(ctx context.Context, orgID, companyID string) ([]Job, error)
	ListByGroup(ctx context.Context, orgID, groupID string) ([]Job, error)
	ListByStatus(ctx context.Context, status Status) ([]Job, error)
	// ListCompleted returns completed jobs of the org for one target scope, newest first.
	ListCompleted(ctx context.Context, orgID string, target scope.Scope) ([]Job, error)
	// CancelPending cancels Pending jobs for the target; a non-empty companyID
	// restricts it to jobs whose subject is that company.
	CancelPending(ctx context.Context, target scope.Scope, targetID, companyID string, at time.Time) (int, error)
}
