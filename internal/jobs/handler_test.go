package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/server/middleware"
)

type stubTargets struct{}

func (stubTargets) GetGroup(_ context.Context, orgID, groupID string) (registry.Group, error) {
	if orgID != "org-1" || groupID != "w1" {
		return registry.Group{}, registry.ErrGroupNotFound
	}
	return registry.Group{ID: groupID, OrgID: orgID}, nil
}

func (stubTargets) GetCompany(_ context.Context, orgID, companyID string) (registry.Company, error) {
	if orgID != "org-1" || companyID != "infy" {
		return registry.Company{}, registry.ErrCompanyNotFound
	}
	return registry.Company{ID: companyID, OrgID: orgID}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := newTestService(t)
	r := gin.New()
	r.Use(middleware.Tenant(nil))
	NewHandler(svc, stubTargets{}).RegisterRoutes(r.Group("/api/v1"))
	return r, svc
}

func do(r http.Handler, method, path, org string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(middleware.OrgIDHeader, org)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHandlerListAndCancel(t *testing.T) {
	r, svc := newTestRouter(t)
	j, _, err := svc.Create(context.Background(), companyRequest("infy", "company:infy:v1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	resp := do(r, http.MethodGet, "/api/v1/companies/infy/jobs", "org-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("list: %d %s", resp.Code, resp.Body.String())
	}
	var payload struct {
		Items []Job `json:"items"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].Status != StatusPending {
		t.Fatalf("unexpected items %+v", payload.Items)
	}

	if resp := do(r, http.MethodGet, "/api/v1/companies/tcs/jobs", "org-1"); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown company: expected 404, got %d", resp.Code)
	}

	if resp := do(r, http.MethodPost, "/api/v1/jobs/"+j.ID+"/cancel", "org-1"); resp.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", resp.Code, resp.Body.String())
	}
	if resp := do(r, http.MethodPost, "/api/v1/jobs/"+j.ID+"/cancel", "org-1"); resp.Code != http.StatusConflict {
		t.Fatalf("second cancel: expected 409, got %d", resp.Code)
	}
	if resp := do(r, http.MethodGet, "/api/v1/jobs/"+j.ID, "org-2"); resp.Code != http.StatusNotFound {
		t.Fatalf("other org: expected 404, got %d", resp.Code)
	}
}
