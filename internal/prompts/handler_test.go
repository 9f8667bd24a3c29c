package prompts

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"transcript-backend/internal/shared/server/middleware"
)

func TestHandlerSetAndFetchPrompt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	r := gin.New()
	r.Use(middleware.Tenant(nil))
	NewHandler(f.store, f.registry).RegisterRoutes(r.Group("/api/v1"))

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.OrgIDHeader, "org-1")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp
	}

	resp := do(http.MethodPut, "/api/v1/prompts/groups/w1", `{"text":"Compare margins across the watchlist"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("set prompt: %d %s", resp.Code, resp.Body.String())
	}
	var created struct {
		Version int    `json:"version"`
		Ref     string `json:"ref"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &created)
	if created.Version != 1 || created.Ref != "group:w1:v1" {
		t.Fatalf("unexpected create payload %+v", created)
	}

	resp = do(http.MethodGet, "/api/v1/prompts/group/w1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("get prompt: %d", resp.Code)
	}

	if resp := do(http.MethodPut, "/api/v1/prompts/group/unknown", `{"text":"x"}`); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown owner, got %d", resp.Code)
	}
	if resp := do(http.MethodPut, "/api/v1/prompts/org/org-2", `{"text":"x"}`); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other org, got %d", resp.Code)
	}
	if resp := do(http.MethodPut, "/api/v1/prompts/sector/w1", `{"text":"x"}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown scope, got %d", resp.Code)
	}

	if resp := do(http.MethodDelete, "/api/v1/prompts/group/w1", ""); resp.Code != http.StatusOK {
		t.Fatalf("clear prompt: %d", resp.Code)
	}
	resp = do(http.MethodGet, "/api/v1/prompts/group/w1/history", "")
	var hist struct {
		Items []Prompt `json:"items"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &hist)
	if len(hist.Items) != 2 || !hist.Items[1].Cleared {
		t.Fatalf("unexpected history %+v", hist.Items)
	}
}
