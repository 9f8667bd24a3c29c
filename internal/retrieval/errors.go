package retrieval

import (
	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
)

var ErrSessionNotFound = errors.Mark(errors.New("ask session not found"), apperr.ErrNotFound)
