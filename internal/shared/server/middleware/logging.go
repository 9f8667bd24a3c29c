package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"transcript-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		statusTransition := ""
		if raw, ok := c.Get("statusTransition"); ok {
			if s, ok := raw.(string); ok {
				statusTransition = s
			}
		}

		telemetry.Info("request.complete", map[string]any{
			telemetry.FieldRequestID: RequestIDFromContext(c),
			"method":                 c.Request.Method,
			"path":                   c.Request.URL.Path,
			telemetry.FieldStatus:    c.Writer.Status(),
			"status_transition":      statusTransition,
			telemetry.FieldDuration:  float64(latency.Microseconds()) / 1000.0,
			telemetry.FieldOrgID:     c.GetString(orgIDKey),
			telemetry.FieldCompanyID: c.GetString(companyIDKey),
			telemetry.FieldGroupID:   c.GetString(groupIDKey),
			telemetry.FieldJobID:     c.GetString(jobIDKey),
			"client_ip":              c.ClientIP(),
			"user_agent":             c.Request.UserAgent(),
		})
	}
}
