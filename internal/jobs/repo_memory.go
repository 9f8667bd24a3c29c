package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/scope"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu    sync.RWMutex
	byID  map[string]Job
	byKey map[string]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:  make(map[string]Job),
		byKey: make(map[string]string),
	}
}

// CreateIfAbsent inserts the job unless its key is taken.
func (r *MemoryRepo) CreateIfAbsent(ctx context.Context, j Job) (Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byKey[j.IdempotencyKey]; ok {
		return clone(r.byID[id]), false, nil
	}
	j = clone(j)
	r.byID[j.ID] = j
	r.byKey[j.IdempotencyKey] = j.ID
	return clone(j), true, nil
}

// Get returns a job by id.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.byID[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return clone(j), nil
}

// GetByKey returns a job by idempotency key.
func (r *MemoryRepo) GetByKey(ctx context.Context, key string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return Job{}, ErrNotFound
	}
	return clone(r.byID[id]), nil
}

// Transition applies a checked status change.
func (r *MemoryRepo) Transition(ctx context.Context, id string, to Status, at time.Time, mutate func(*Job)) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if !CanTransition(j.Status, to) {
		return Job{}, ErrInvalidTransition
	}
	j = clone(j)
	if mutate != nil {
		mutate(&j)
	}
	j.Status = to
	j.UpdatedAt = at
	r.byID[id] = j
	return clone(j), nil
}

// MarkAdmitted sets the admitted period once.
func (r *MemoryRepo) MarkAdmitted(ctx context.Context, id, periodID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if j.AdmittedPeriod != "" {
		return false, nil
	}
	j.AdmittedPeriod = periodID
	j.UpdatedAt = at
	r.byID[id] = j
	return true, nil
}

// ListByCompany returns jobs whose subject is the company, newest first.
func (r *MemoryRepo) ListByCompany(ctx context.Context, orgID, companyID string) ([]Job, error) {
	return r.filter(ctx, func(j Job) bool {
		return j.OrgID == orgID && j.CompanyID == companyID
	})
}

// ListByGroup returns jobs run under the group, newest first.
func (r *MemoryRepo) ListByGroup(ctx context.Context, orgID, groupID string) ([]Job, error) {
	return r.filter(ctx, func(j Job) bool {
		return j.OrgID == orgID && j.GroupID == groupID
	})
}

// ListByStatus returns jobs in the status, newest first.
func (r *MemoryRepo) ListByStatus(ctx context.Context, status Status) ([]Job, error) {
	return r.filter(ctx, func(j Job) bool { return j.Status == status })
}

// ListCompleted returns completed jobs for the org and target scope, newest first.
func (r *MemoryRepo) ListCompleted(ctx context.Context, orgID string, target scope.Scope) ([]Job, error) {
	out, err := r.filter(ctx, func(j Job) bool {
		return j.OrgID == orgID && j.Target == target && j.Status == StatusCompleted
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, k int) bool {
		return completedAt(out[i]).After(completedAt(out[k]))
	})
	return out, nil
}

// CancelPending cancels Pending jobs for the target.
func (r *MemoryRepo) CancelPending(ctx context.Context, target scope.Scope, targetID, companyID string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.byID {
		if j.Status != StatusPending || j.Target != target || j.TargetID != targetID {
			continue
		}
		if companyID != "" && j.CompanyID != companyID {
			continue
		}
		j.Status = StatusCanceled
		j.ErrorCode = apperr.CodeCanceled
		j.UpdatedAt = at
		r.byID[id] = j
		n++
	}
	return n, nil
}

func (r *MemoryRepo) filter(ctx context.Context, keep func(Job) bool) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Job, 0)
	for _, j := range r.byID {
		if keep(j) {
			out = append(out, clone(j))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out, nil
}

func completedAt(j Job) time.Time {
	if j.CompletedAt == nil {
		return time.Time{}
	}
	return *j.CompletedAt
}

func clone(j Job) Job {
	if j.TranscriptRefs != nil {
		j.TranscriptRefs = append([]TranscriptRef(nil), j.TranscriptRefs...)
	}
	return j
}
