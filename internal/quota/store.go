package quota

import (
	"context"
	"time"
)

type store interface {
	// Increment adds one to the counter if it is below limit. It reports whether
	// the increment happened and returns the counter after the attempt.
	Increment(ctx context.Context, orgID, periodID string, limit int, at time.Time) (Counter, bool, error)
	Get(ctx context.Context, orgID, periodID string, limit int) (Counter, error)
}
