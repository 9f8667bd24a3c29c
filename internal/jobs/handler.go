package jobs

import (
	"context"

	"github.com/gin-gonic/gin"

	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/server/middleware"
	"transcript-backend/internal/shared/server/respond"
)

// Targets verifies that groups and companies belong to the caller's org.
type Targets interface {
	GetGroup(ctx context.Context, orgID, groupID string) (registry.Group, error)
	GetCompany(ctx context.Context, orgID, companyID string) (registry.Company, error)
}

// Handler exposes job listings and cancellation.
type Handler struct {
	Svc     *Service
	Targets Targets
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, targets Targets) *Handler {
	return &Handler{Svc: svc, Targets: targets}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/groups/:id/jobs", h.listForGroup)
	rg.GET("/companies/:id/jobs", h.listForCompany)
	rg.GET("/jobs/:id", h.get)
	rg.POST("/jobs/:id/cancel", h.cancel)
}

func (h *Handler) listForGroup(c *gin.Context) {
	ctx := c.Request.Context()
	orgID := middleware.OrgIDFromContext(c)
	groupID := c.Param("id")
	middleware.SetGroupID(c, groupID)
	if _, err := h.Targets.GetGroup(ctx, orgID, groupID); err != nil {
		respond.FromError(c, err, "failed to list jobs")
		return
	}
	items, err := h.Svc.ListForGroup(ctx, orgID, groupID)
	if err != nil {
		respond.FromError(c, err, "failed to list jobs")
		return
	}
	respond.OK(c, gin.H{"items": items})
}

func (h *Handler) listForCompany(c *gin.Context) {
	ctx := c.Request.Context()
	orgID := middleware.OrgIDFromContext(c)
	companyID := c.Param("id")
	middleware.SetCompanyID(c, companyID)
	if _, err := h.Targets.GetCompany(ctx, orgID, companyID); err != nil {
		respond.FromError(c, err, "failed to list jobs")
		return
	}
	items, err := h.Svc.ListForCompany(ctx, orgID, companyID)
	if err != nil {
		respond.FromError(c, err, "failed to list jobs")
		return
	}
	respond.OK(c, gin.H{"items": items})
}

func (h *Handler) get(c *gin.Context) {
	middleware.SetJobID(c, c.Param("id"))
	j, err := h.Svc.Get(c.Request.Context(), middleware.OrgIDFromContext(c), c.Param("id"))
	if err != nil {
		respond.FromError(c, err, "failed to fetch job")
		return
	}
	respond.OK(c, j)
}

func (h *Handler) cancel(c *gin.Context) {
	middleware.SetJobID(c, c.Param("id"))
	j, err := h.Svc.Cancel(c.Request.Context(), middleware.OrgIDFromContext(c), c.Param("id"))
	if err != nil {
		respond.FromError(c, err, "failed to cancel job")
		return
	}
	respond.OK(c, j)
}
