package distribution

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.Mutex
	data map[string]Dispatch
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Dispatch)}
}

// Claim stores the dispatch once per job.
func (r *MemoryRepo) Claim(ctx context.Context, d Dispatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[d.JobID]; ok {
		return false, nil
	}
	d.Recipients = append([]string(nil), d.Recipients...)
	r.data[d.JobID] = d
	return true, nil
}

// Update overwrites the dispatch status fields.
func (r *MemoryRepo) Update(ctx context.Context, d Dispatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[d.JobID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = d.Status
	cur.Attempts = d.Attempts
	cur.LastError = d.LastError
	cur.SentAt = d.SentAt
	r.data[d.JobID] = cur
	return nil
}

// Get returns the dispatch for a job.
func (r *MemoryRepo) Get(ctx context.Context, jobID string) (Dispatch, error) {
	if err := ctx.Err(); err != nil {
		return Dispatch{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.data[jobID]
	if !ok {
		return Dispatch{}, ErrNotFound
	}
	d.Recipients = append([]string(nil), d.Recipients...)
	return d, nil
}
