package transcripts

import (
	"context"

	"github.com/gin-gonic/gin"

	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/server/middleware"
	"transcript-backend/internal/shared/server/respond"
)

// Companies verifies company ownership.
type Companies interface {
	GetCompany(ctx context.Context, orgID, companyID string) (registry.Company, error)
}

// Handler exposes transcript listings.
type Handler struct {
	Svc       *Service
	Companies Companies
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, companies Companies) *Handler {
	return &Handler{Svc: svc, Companies: companies}
}

// RegisterRoutes attaches transcript routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/companies/:id/transcripts", h.listByCompany)
}

func (h *Handler) listByCompany(c *gin.Context) {
	companyID := c.Param("id")
	middleware.SetCompanyID(c, companyID)
	if _, err := h.Companies.GetCompany(c.Request.Context(), middleware.OrgIDFromContext(c), companyID); err != nil {
		respond.FromError(c, err, "failed to list transcripts")
		return
	}
	items, err := h.Svc.ListByCompany(c.Request.Context(), companyID)
	if err != nil {
		respond.FromError(c, err, "failed to list transcripts")
		return
	}
	respond.OK(c, gin.H{"items": items})
}
