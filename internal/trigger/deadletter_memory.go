package trigger

import (
	"context"
	"sync"
)

// MemoryDeadLetters is an in-memory DeadLetterRepo.
type MemoryDeadLetters struct {
	mu    sync.Mutex
	items []DeadLetter
}

// NewMemoryDeadLetters constructs a MemoryDeadLetters.
func NewMemoryDeadLetters() *MemoryDeadLetters {
	return &MemoryDeadLetters{}
}

func (r *MemoryDeadLetters) Add(ctx context.Context, d DeadLetter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, d)
	return nil
}

func (r *MemoryDeadLetters) List(ctx context.Context, limit int) ([]DeadLetter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DeadLetter, 0, len(r.items))
	for i := len(r.items) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, r.items[i])
	}
	return out, nil
}
