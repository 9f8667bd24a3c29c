package registry

import (
	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
)

var (
	ErrGroupNotFound   = errors.Mark(errors.New("group not found"), apperr.ErrNotFound)
	ErrCompanyNotFound = errors.Mark(errors.New("company not found"), apperr.ErrNotFound)
)
