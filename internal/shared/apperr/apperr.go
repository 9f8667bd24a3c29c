// Package apperr holds the error taxonomy shared by the domain packages.
// Domain packages wrap or mark their errors with these sentinels so that
// transport layers can classify them with errors.Is.
package apperr

import "github.com/cockroachdb/errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
	ErrPermanent     = errors.New("permanent failure")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrEmailDispatch = errors.New("email dispatch failed")
	ErrConflict      = errors.New("conflict")
)

// Error codes recorded on terminal jobs and returned in HTTP envelopes.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeQuotaExceeded = "QUOTA_EXCEEDED"
	CodeLLMTimeout    = "LLM_TIMEOUT"
	CodeLLMRateLimit  = "LLM_RATE_LIMITED"
	CodeLLMRejected   = "LLM_CONTENT_REJECTED"
	CodeLLMUpstream   = "LLM_UPSTREAM_ERROR"
	CodeTranscript    = "TRANSCRIPT_UNAVAILABLE"
	CodeStorage       = "STORAGE_ERROR"
	CodeCanceled      = "CANCELED"
	CodeInternal      = "INTERNAL_ERROR"
)

// Validationf builds a validation error carrying a formatted message.
func Validationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// NotFoundf builds a not-found error carrying a formatted message.
func NotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
