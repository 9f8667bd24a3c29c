package metrics

import (
	"strings"
	"testing"
)

func TestRenderIncludesCountersAndCumulativeBuckets(t *testing.T) {
	IncJobsCreated()
	ObserveJobDurationMs(120)
	ObserveJobDurationMs(90000)

	out := Render()
	if !strings.Contains(out, "# TYPE jobs_created_total counter") {
		t.Fatalf("missing jobs_created_total counter:\n%s", out)
	}
	if !strings.Contains(out, `job_attempt_duration_ms_bucket{le="250"}`) {
		t.Fatalf("missing histogram bucket:\n%s", out)
	}
	if !strings.Contains(out, `job_attempt_duration_ms_bucket{le="+Inf"}`) {
		t.Fatalf("missing +Inf bucket:\n%s", out)
	}
}
