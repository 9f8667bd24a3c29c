package jobs

import (
	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
)

var (
	ErrNotFound = errors.Mark(errors.New("job not found"), apperr.ErrNotFound)
	// ErrInvalidTransition is returned when a job is not in a state that allows the change.
	ErrInvalidTransition = errors.Mark(errors.New("invalid job status transition"), apperr.ErrConflict)
)
