package prompts

import (
	"context"

	"transcript-backend/internal/shared/scope"
)

// Repo is an append-only version log per (scope, owner).
type Repo interface {
	// Append stores p as the next version for its owner and returns it with Version set.
	Append(ctx context.Context, p Prompt) (Prompt, error)
	// History returns all versions for the owner, oldest first.
	History(ctx context.Context, s scope.Scope, ownerID string) ([]Prompt, error)
}
