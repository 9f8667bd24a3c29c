package prompts

import (
	"fmt"
	"time"

	"transcript-backend/internal/shared/scope"
)

// Prompt is one immutable version of the prompt attached to an owner at a scope.
// A cleared version is a tombstone: the owner has no active prompt from then on.
type Prompt struct {
	ID        string      `json:"id"`
	Scope     scope.Scope `json:"scope"`
	OwnerID   string      `json:"ownerId"`
	Version   int         `json:"version"`
	Text      string      `json:"text"`
	Cleared   bool        `json:"cleared"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Ref identifies the exact version, e.g. "group:g1:v3".
func (p Prompt) Ref() string {
	return fmt.Sprintf("%s:%s:v%d", p.Scope, p.OwnerID, p.Version)
}

// Resolution pairs a prompt with the target its job runs against.
type Resolution struct {
	Prompt   Prompt      `json:"prompt"`
	Target   scope.Scope `json:"target"`
	TargetID string      `json:"targetId"`
}
