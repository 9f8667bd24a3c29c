package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"transcript-backend/internal/shared/apperr"
)

func TestFromErrorMapsTaxonomy(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperr.Validationf("k out of range"), http.StatusBadRequest, "validation_error"},
		{"not found", errors.Wrap(apperr.NotFoundf("group g1 not found"), "get"), http.StatusNotFound, "not_found"},
		{"quota", errors.Mark(errors.New("limit 1000 reached"), apperr.ErrQuotaExceeded), http.StatusTooManyRequests, "quota_exceeded"},
		{"internal", errors.New("db down"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { FromError(c, tc.err, "request failed") })
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/x", nil))
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
			var body ErrorResponse
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, body.Error.Code)
			}
			if tc.status == http.StatusInternalServerError && body.Error.Message != "request failed" {
				t.Fatalf("internal message leaked: %s", body.Error.Message)
			}
		})
	}
}
