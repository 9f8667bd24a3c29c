package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zapcore"

	"transcript-backend/internal/shared/telemetry"
)

func TestLoggingIncludesRequiredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	telemetry.SetOutput(zapcore.AddSync(&buf))
	t.Cleanup(func() { telemetry.SetOutput(zapcore.AddSync(os.Stdout)) })

	router := gin.New()
	router.Use(RequestID(), Tenant(nil), Logging())
	router.POST("/test", func(c *gin.Context) {
		SetGroupID(c, "group-1")
		SetJobID(c, "job-1")
		c.Set("statusTransition", "Pending->Canceled")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set(OrgIDHeader, "org-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatalf("expected log output")
	}
	last := lines[len(lines)-1]
	var payload map[string]any
	if err := json.Unmarshal([]byte(last), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}

	required := []string{"request_id", "org_id", "group_id", "job_id", "duration_ms", "status", "status_transition"}
	for _, key := range required {
		if _, ok := payload[key]; !ok {
			t.Fatalf("missing log field: %s", key)
		}
	}
	if payload["org_id"] != "org-1" {
		t.Fatalf("unexpected org_id: %v", payload["org_id"])
	}
	if payload["job_id"] != "job-1" {
		t.Fatalf("unexpected job_id: %v", payload["job_id"])
	}
	if payload["status_transition"] != "Pending->Canceled" {
		t.Fatalf("unexpected status_transition: %v", payload["status_transition"])
	}
}
