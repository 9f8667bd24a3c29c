package distribution

import (
	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
)

var (
	ErrNotFound = errors.Mark(errors.New("email dispatch not found"), apperr.ErrNotFound)
	// ErrDispatchFailed is returned after every send attempt for a job failed.
	ErrDispatchFailed = errors.Mark(errors.New("EmailDispatchFailure"), apperr.ErrEmailDispatch)
)
