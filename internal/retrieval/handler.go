package retrieval

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/server/middleware"
	"transcript-backend/internal/shared/server/respond"
)

// Handler exposes the ask endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches ask routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/ask", h.ask)
	rg.GET("/ask/sessions/:id", h.getSession)
}

type askRequest struct {
	SessionID            string `json:"sessionId"`
	Scope                string `json:"scope"`
	TargetID             string `json:"targetId"`
	K                    int    `json:"k"`
	IncludeSectorOutputs *bool  `json:"includeSectorOutputs"`
	Question             string `json:"question" binding:"required"`
}

func (h *Handler) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid ask payload", nil)
		return
	}
	in := AskInput{
		OrgID:                middleware.OrgIDFromContext(c),
		SessionID:            req.SessionID,
		TargetID:             req.TargetID,
		K:                    req.K,
		IncludeSectorOutputs: req.IncludeSectorOutputs,
		Question:             req.Question,
	}
	if req.SessionID == "" {
		sc, err := scope.Parse(req.Scope)
		if err != nil {
			respond.FromError(c, err, "invalid scope")
			return
		}
		in.Scope = sc
	}
	res, err := h.Svc.Ask(c.Request.Context(), in)
	if err != nil {
		respond.FromError(c, err, "failed to answer question")
		return
	}
	respond.OK(c, res)
}

func (h *Handler) getSession(c *gin.Context) {
	sess, err := h.Svc.GetSession(c.Request.Context(), middleware.OrgIDFromContext(c), c.Param("id"))
	if err != nil {
		respond.FromError(c, err, "failed to fetch session")
		return
	}
	respond.OK(c, sess)
}
