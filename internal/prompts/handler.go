package prompts

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"transcript-backend/internal/registry"
	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/server/middleware"
	"transcript-backend/internal/shared/server/respond"
)

// Owners verifies that a group or company belongs to the requesting organization.
type Owners interface {
	GetGroup(ctx context.Context, orgID, groupID string) (registry.Group, error)
	GetCompany(ctx context.Context, orgID, companyID string) (registry.Company, error)
}

// Handler wires HTTP handlers to the prompt store.
type Handler struct {
	Svc    *Service
	Owners Owners
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, owners Owners) *Handler {
	return &Handler{Svc: svc, Owners: owners}
}

// RegisterRoutes attaches prompt routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/prompts/:scope/:ownerId", h.getActive)
	rg.PUT("/prompts/:scope/:ownerId", h.setPrompt)
	rg.DELETE("/prompts/:scope/:ownerId", h.clearPrompt)
	rg.GET("/prompts/:scope/:ownerId/history", h.history)
}

func (h *Handler) owner(c *gin.Context) (scope.Scope, string, bool) {
	sc, err := scope.Parse(c.Param("scope"))
	if err != nil {
		respond.FromError(c, err, "invalid scope")
		return "", "", false
	}
	orgID := middleware.OrgIDFromContext(c)
	ownerID := c.Param("ownerId")
	ctx := c.Request.Context()
	switch sc {
	case scope.Org:
		if ownerID != orgID {
			respond.Error(c, http.StatusNotFound, "not_found", "organization not found", nil)
			return "", "", false
		}
	case scope.Group:
		middleware.SetGroupID(c, ownerID)
		if _, err := h.Owners.GetGroup(ctx, orgID, ownerID); err != nil {
			respond.FromError(c, err, "failed to resolve prompt owner")
			return "", "", false
		}
	case scope.Company:
		middleware.SetCompanyID(c, ownerID)
		if _, err := h.Owners.GetCompany(ctx, orgID, ownerID); err != nil {
			respond.FromError(c, err, "failed to resolve prompt owner")
			return "", "", false
		}
	}
	return sc, ownerID, true
}

func (h *Handler) getActive(c *gin.Context) {
	sc, ownerID, ok := h.owner(c)
	if !ok {
		return
	}
	p, err := h.Svc.Active(c.Request.Context(), sc, ownerID)
	if err != nil {
		if errors.Is(err, ErrNoActivePrompt) {
			respond.OK(c, gin.H{"scope": sc, "ownerId": ownerID, "active": nil})
			return
		}
		respond.FromError(c, err, "failed to fetch prompt")
		return
	}
	respond.OK(c, gin.H{"scope": sc, "ownerId": ownerID, "active": p, "ref": p.Ref()})
}

type setPromptRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) setPrompt(c *gin.Context) {
	sc, ownerID, ok := h.owner(c)
	if !ok {
		return
	}
	var req setPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "text is required", nil)
		return
	}
	p, err := h.Svc.SetPrompt(c.Request.Context(), sc, ownerID, req.Text)
	if err != nil {
		respond.FromError(c, err, "failed to save prompt")
		return
	}
	respond.JSON(c, http.StatusCreated, gin.H{"id": p.ID, "version": p.Version, "ref": p.Ref(), "prompt": p})
}

func (h *Handler) clearPrompt(c *gin.Context) {
	sc, ownerID, ok := h.owner(c)
	if !ok {
		return
	}
	p, err := h.Svc.ClearPrompt(c.Request.Context(), sc, ownerID)
	if err != nil {
		respond.FromError(c, err, "failed to clear prompt")
		return
	}
	respond.OK(c, gin.H{"id": p.ID, "version": p.Version, "ref": p.Ref(), "cleared": true})
}

func (h *Handler) history(c *gin.Context) {
	sc, ownerID, ok := h.owner(c)
	if !ok {
		return
	}
	items, err := h.Svc.History(c.Request.Context(), sc, ownerID)
	if err != nil {
		respond.FromError(c, err, "failed to list prompt history")
		return
	}
	respond.OK(c, gin.H{"items": items})
}
