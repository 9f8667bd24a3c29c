package jobs

import (
	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/util"
)

// Key returns the idempotency key for (subject, period, prompt version, target).
// Manual runs pass a nonce so they never collide with automatic runs.
func Key(subjectID, period, promptRef string, target scope.Scope, targetID, nonce string) string {
	parts := []string{subjectID, period, promptRef, string(target) + ":" + targetID}
	if nonce != "" {
		parts = append(parts, "nonce:"+nonce)
	}
	return util.HashKey(parts...)
}

// KeyFor returns the idempotency key of a request.
func KeyFor(r Request) string {
	return Key(r.Subject(), r.Period, r.PromptRef, r.Target, r.TargetID, r.Nonce)
}
