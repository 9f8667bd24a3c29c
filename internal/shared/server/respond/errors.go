package respond

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/telemetry"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	fields := map[string]any{
		"status":                status,
		"code":                  code,
		"message":               message,
		"path":                  c.Request.URL.Path,
		"method":                c.Request.Method,
		telemetry.FieldRequestID: c.GetString("requestId"),
	}
	if orgID := c.GetString("orgId"); orgID != "" {
		fields[telemetry.FieldOrgID] = orgID
	}
	telemetry.Error("http.error", fields)

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// FromError maps a domain error onto the envelope. fallback is used as the
// message for unclassified errors so internals are not leaked.
func FromError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, apperr.ErrNotFound):
		Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, apperr.ErrQuotaExceeded):
		Error(c, http.StatusTooManyRequests, "quota_exceeded", err.Error(), nil)
	case errors.Is(err, apperr.ErrConflict):
		Error(c, http.StatusConflict, "conflict", err.Error(), nil)
	default:
		telemetry.Error("http.internal_error", map[string]any{
			telemetry.FieldRequestID: c.GetString("requestId"),
			telemetry.FieldError:     err.Error(),
		})
		Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
