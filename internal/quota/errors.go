package quota

import (
	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
)

// ErrLimitReached is returned when a job cannot be admitted or deferred.
var ErrLimitReached = errors.Mark(errors.New("quota limit reached"), apperr.ErrQuotaExceeded)
