package retrieval

import (
	"context"
	"sort"
	"sync"

	"transcript-backend/internal/shared/scope"
)

// MemoryRepo is an in-memory SessionRepo.
type MemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sessions: make(map[string]Session)}
}

func (r *MemoryRepo) Create(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Turns = nil
	r.sessions[s.ID] = s
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	s.Turns = append([]Turn(nil), s.Turns...)
	return s, nil
}

func (r *MemoryRepo) AppendTurn(ctx context.Context, sessionID string, t Turn) (Turn, error) {
	if err := ctx.Err(); err != nil {
		return Turn{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return Turn{}, ErrSessionNotFound
	}
	t.Seq = len(s.Turns) + 1
	s.Turns = append(s.Turns, t)
	r.sessions[sessionID] = s
	return t, nil
}

func (r *MemoryRepo) TurnsForTarget(ctx context.Context, orgID string, sc scope.Scope, targetID string) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Turn, 0)
	for _, s := range r.sessions {
		if s.OrgID == orgID && s.Scope == sc && s.TargetID == targetID {
			out = append(out, s.Turns...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AskedAt.Before(out[j].AskedAt)
	})
	return out, nil
}
