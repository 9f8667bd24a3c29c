package distribution

import "context"

// Repo persists email dispatches keyed by job id.
type Repo interface {
	// Claim inserts d unless a dispatch for the job exists; it reports whether this call created it.
	Claim(ctx context.Context, d Dispatch) (bool, error)
	Update(ctx context.Context, d Dispatch) error
	Get(ctx context.Context, jobID string) (Dispatch, error)
}
