package retrieval

import (
	"context"

	"transcript-backend/internal/shared/scope"
)

// SessionRepo persists ask sessions and their append-only turns.
type SessionRepo interface {
	Create(ctx context.Context, s Session) error
	// Get returns the session with its turns in order.
	Get(ctx context.Context, id string) (Session, error)
	// AppendTurn stores t as the next turn and returns it with Seq set.
	AppendTurn(ctx context.Context, sessionID string, t Turn) (Turn, error)
	// TurnsForTarget returns every turn of the org's sessions on the target, oldest first.
	TurnsForTarget(ctx context.Context, orgID string, sc scope.Scope, targetID string) ([]Turn, error)
}
