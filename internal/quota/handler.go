package quota

import (
	"github.com/gin-gonic/gin"

	"transcript-backend/internal/shared/server/middleware"
	"transcript-backend/internal/shared/server/respond"
)

// Handler exposes quota usage.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches quota routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/quota", h.getUsage)
}

func (h *Handler) getUsage(c *gin.Context) {
	u, err := h.Svc.Usage(c.Request.Context(), middleware.OrgIDFromContext(c))
	if err != nil {
		respond.FromError(c, err, "failed to fetch quota")
		return
	}
	respond.OK(c, u)
}
