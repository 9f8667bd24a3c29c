package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"transcript-backend/internal/jobs"
	"transcript-backend/internal/shared/config"
	"transcript-backend/internal/shared/server/middleware"
)

const seed = `organizations:
  - id: org-1
    name: Acme Research
    plan:
      name: pro
      period: monthly
      job_limit: 10
    default_recipients: [desk@acme.test]
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "orgs.yaml")
	if err := os.WriteFile(seedPath, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return config.Config{
		Env:               "dev",
		ObjectStoreType:   "local",
		LocalStoreDir:     filepath.Join(dir, "data"),
		LLMProvider:       "none",
		LLMTimeout:        5 * time.Second,
		OrgSeedFile:       seedPath,
		WorkerConcurrency: 2,
		JobQueueSize:      16,
		MaxAttempts:       3,
		RetryBaseDelay:    time.Millisecond,
		RetryMaxDelay:     10 * time.Millisecond,
		RolloverInterval:  time.Hour,
		QuotaPolicy:       "defer",
		QuotaDeferDepth:   10,
		EmailTransport:    "log",
		EmailAttempts:     1,
	}
}

func call(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.OrgIDHeader, "org-1")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestBuildInMemoryServesArrivalToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := Build(ctx, testConfig(t), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if app.DB != nil {
		t.Fatalf("expected in-memory mode")
	}
	go func() { _ = app.Scheduler.Run(ctx) }()

	r := app.Router
	if resp := call(t, r, http.MethodPost, "/api/v1/companies", `{"id":"infy","name":"Infosys","ticker":"INFY"}`); resp.Code >= 300 {
		t.Fatalf("upsert company: %d %s", resp.Code, resp.Body.String())
	}
	if resp := call(t, r, http.MethodPut, "/api/v1/prompts/org/org-1", `{"text":"Summarize guidance and margins."}`); resp.Code >= 300 {
		t.Fatalf("set prompt: %d %s", resp.Code, resp.Body.String())
	}
	if _, err := app.Store.SaveWithKey(ctx, "docs/infy-q2.txt", "text/plain", strings.NewReader("Infosys raised guidance.")); err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}

	resp := call(t, r, http.MethodPost, "/api/v1/arrivals", `{"companyId":"infy","period":"Q2FY26","documentRef":"docs/infy-q2.txt"}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("arrival: %d %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Created []jobs.Job `json:"created"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil || len(out.Created) != 1 {
		t.Fatalf("expected one job: %v %s", err, resp.Body.String())
	}

	id := out.Created[0].ID
	deadline := time.Now().Add(5 * time.Second)
	for {
		j, err := app.Jobs.Get(ctx, "org-1", id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if j.Status == jobs.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete, status=%s", j.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if resp := call(t, r, http.MethodGet, "/api/v1/quota", ""); resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"used":1`) {
		t.Fatalf("quota: %d %s", resp.Code, resp.Body.String())
	}
}

func TestBuildRouterGuards(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("health: %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/groups", nil)
	resp = httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("missing org header: %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/groups", nil)
	req.Header.Set(middleware.OrgIDHeader, "org-unknown")
	resp = httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown org: %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp = httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "arrivals_received_total") {
		t.Fatalf("metrics: %d %s", resp.Code, resp.Body.String())
	}
}
