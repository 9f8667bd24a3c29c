package prompts

import (
	"context"
	"sync"

	"transcript-backend/internal/shared/scope"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string][]Prompt
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string][]Prompt)}
}

func ownerKey(s scope.Scope, ownerID string) string {
	return string(s) + "|" + ownerID
}

// Append stores the next version.
func (r *MemoryRepo) Append(ctx context.Context, p Prompt) (Prompt, error) {
	if err := ctx.Err(); err != nil {
		return Prompt{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ownerKey(p.Scope, p.OwnerID)
	p.Version = len(r.data[key]) + 1
	r.data[key] = append(r.data[key], p)
	return p, nil
}

// History returns a copy of the version log.
func (r *MemoryRepo) History(ctx context.Context, s scope.Scope, ownerID string) ([]Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Prompt(nil), r.data[ownerKey(s, ownerID)]...), nil
}
