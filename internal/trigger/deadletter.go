package trigger

import "context"

// DeadLetterRepo stores arrivals that failed permanently.
type DeadLetterRepo interface {
	Add(ctx context.Context, d DeadLetter) error
	// List returns the newest dead letters first, at most limit of them.
	List(ctx context.Context, limit int) ([]DeadLetter, error)
}
