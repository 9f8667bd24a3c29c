package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"transcript-backend/internal/shared/server/respond"
)

const (
	orgIDKey     = "orgId"
	OrgIDHeader  = "X-Org-Id"
	companyIDKey = "companyId"
	groupIDKey   = "groupId"
	jobIDKey     = "jobId"
)

// OrgLookup reports whether an organization id is known.
type OrgLookup func(orgID string) bool

// Tenant resolves the organization a request acts on from the X-Org-Id header.
// It identifies the tenant only; it does not authenticate the caller.
func Tenant(known OrgLookup, exemptPaths ...string) gin.HandlerFunc {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		if _, ok := exempt[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		orgID := strings.TrimSpace(c.GetHeader(OrgIDHeader))
		if orgID == "" {
			respond.Error(c, http.StatusBadRequest, "missing_org", "X-Org-Id header is required", nil)
			return
		}
		if known != nil && !known(orgID) {
			respond.Error(c, http.StatusNotFound, "not_found", "organization not found", nil)
			return
		}
		c.Set(orgIDKey, orgID)
		c.Next()
	}
}

// OrgIDFromContext fetches the organization ID set by the tenant middleware.
func OrgIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(orgIDKey)
}

// SetCompanyID, SetGroupID and SetJobID annotate the request log line.
func SetCompanyID(c *gin.Context, id string) { c.Set(companyIDKey, id) }
func SetGroupID(c *gin.Context, id string)   { c.Set(groupIDKey, id) }
func SetJobID(c *gin.Context, id string)     { c.Set(jobIDKey, id) }
