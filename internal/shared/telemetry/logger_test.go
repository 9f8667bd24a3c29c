package telemetry

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

func TestInfoWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(zapcore.AddSync(&buf))
	t.Cleanup(func() { SetOutput(zapcore.AddSync(os.Stdout)) })

	Info("job.status", map[string]any{
		FieldJobID:  "job-1",
		FieldStatus: "running",
		FieldError:  errors.New("boom"),
	})

	line := strings.TrimSpace(buf.String())
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("decode log json: %v (%s)", err, line)
	}
	if payload["msg"] != "job.status" {
		t.Fatalf("unexpected msg: %v", payload["msg"])
	}
	if payload["level"] != "info" {
		t.Fatalf("unexpected level: %v", payload["level"])
	}
	if payload["job_id"] != "job-1" || payload["status"] != "running" {
		t.Fatalf("missing fields: %v", payload)
	}
	if payload["error"] != "boom" {
		t.Fatalf("expected error string, got %v", payload["error"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("missing ts")
	}
}

func TestNilErrorFieldIsOmitted(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(zapcore.AddSync(&buf))
	t.Cleanup(func() { SetOutput(zapcore.AddSync(os.Stdout)) })

	var err error
	Warn("quota.release_failed", map[string]any{FieldError: err, FieldOrgID: "org-1"})

	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if _, ok := payload["error"]; ok {
		t.Fatalf("nil error must be omitted, got %v", payload["error"])
	}
	if payload["org_id"] != "org-1" {
		t.Fatalf("missing org_id: %v", payload)
	}
}
