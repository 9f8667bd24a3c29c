package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"transcript-backend/internal/shared/server/respond"
	"transcript-backend/internal/shared/telemetry"
)

// Recovery recovers from panics and returns a standardized error response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				telemetry.Error("http.panic", map[string]any{
					telemetry.FieldRequestID: RequestIDFromContext(c),
					telemetry.FieldOrgID:     OrgIDFromContext(c),
					telemetry.FieldError:     fmt.Sprint(rec),
					"stack":                  string(debug.Stack()),
					"path":                   c.Request.URL.Path,
					"method":                 c.Request.Method,
				})
				respond.Error(c, http.StatusInternalServerError, "internal_error", "Unexpected server error", nil)
			}
		}()
		c.Next()
	}
}
