package transcripts

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]map[string]Transcript // companyID -> period -> transcript
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]map[string]Transcript)}
}

// Record stores the first arrival for (company, period).
func (r *MemoryRepo) Record(ctx context.Context, t Transcript) (Transcript, bool, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byPeriod, ok := r.data[t.CompanyID]
	if !ok {
		byPeriod = make(map[string]Transcript)
		r.data[t.CompanyID] = byPeriod
	}
	if existing, ok := byPeriod[t.Period]; ok {
		return existing, false, nil
	}
	byPeriod[t.Period] = t
	return t, true, nil
}

// Get returns the transcript for (company, period).
func (r *MemoryRepo) Get(ctx context.Context, companyID, period string) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.data[companyID][period]
	if !ok {
		return Transcript{}, ErrNotFound
	}
	return t, nil
}

// ListByCompany returns the company's transcripts, newest period first.
func (r *MemoryRepo) ListByCompany(ctx context.Context, companyID string) ([]Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Transcript, 0, len(r.data[companyID]))
	for _, t := range r.data[companyID] {
		out = append(out, t)
	}
	r.mu.RUnlock()
	SortNewestFirst(out)
	return out, nil
}

// ListForPeriod returns the transcripts of companyIDs for period, in companyIDs order.
func (r *MemoryRepo) ListForPeriod(ctx context.Context, companyIDs []string, period string) ([]Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Transcript, 0, len(companyIDs))
	for _, id := range companyIDs {
		if t, ok := r.data[id][period]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}
