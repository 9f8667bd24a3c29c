package registry

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"transcript-backend/internal/shared/scope"
	"transcript-backend/internal/shared/server/middleware"
	"transcript-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the registry service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches group and company routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/groups", h.listGroups)
	rg.POST("/groups", h.createGroup)
	rg.GET("/groups/:id", h.getGroup)
	rg.DELETE("/groups/:id", h.deleteGroup)
	rg.GET("/groups/:id/members", h.listMembers)
	rg.PUT("/groups/:id/members/:companyId", h.addMember)
	rg.DELETE("/groups/:id/members/:companyId", h.removeMember)
	rg.PUT("/groups/:id/auto-email", h.setAutoEmail(scope.Group))
	rg.PUT("/groups/:id/recipients", h.setRecipients(scope.Group))

	rg.GET("/companies", h.listCompanies)
	rg.POST("/companies", h.upsertCompany)
	rg.GET("/companies/:id", h.getCompany)
	rg.PUT("/companies/:id/auto-email", h.setAutoEmail(scope.Company))
	rg.PUT("/companies/:id/recipients", h.setRecipients(scope.Company))
}

type createGroupRequest struct {
	ID                 string   `json:"id"`
	Kind               string   `json:"kind"`
	Name               string   `json:"name" binding:"required"`
	Members            []string `json:"members"`
	AutoEmail          bool     `json:"autoEmail"`
	Recipients         []string `json:"recipients"`
	RequireAllReported bool     `json:"requireAllReported"`
}

func (h *Handler) createGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid group payload", nil)
		return
	}
	g, err := h.Svc.CreateGroup(c.Request.Context(), middleware.OrgIDFromContext(c), CreateGroupInput(req))
	if err != nil {
		respond.FromError(c, err, "failed to create group")
		return
	}
	middleware.SetGroupID(c, g.ID)
	respond.JSON(c, http.StatusCreated, g)
}

func (h *Handler) listGroups(c *gin.Context) {
	var (
		groups []Group
		err    error
	)
	if q, ok := c.GetQuery("q"); ok {
		groups, err = h.Svc.SearchGroups(c.Request.Context(), middleware.OrgIDFromContext(c), q)
	} else {
		groups, err = h.Svc.ListGroups(c.Request.Context(), middleware.OrgIDFromContext(c))
	}
	if err != nil {
		respond.FromError(c, err, "failed to list groups")
		return
	}
	respond.OK(c, gin.H{"items": groups})
}

func (h *Handler) getGroup(c *gin.Context) {
	middleware.SetGroupID(c, c.Param("id"))
	g, err := h.Svc.GetGroup(c.Request.Context(), middleware.OrgIDFromContext(c), c.Param("id"))
	if err != nil {
		respond.FromError(c, err, "failed to fetch group")
		return
	}
	respond.OK(c, g)
}

func (h *Handler) deleteGroup(c *gin.Context) {
	middleware.SetGroupID(c, c.Param("id"))
	if err := h.Svc.DeleteGroup(c.Request.Context(), middleware.OrgIDFromContext(c), c.Param("id")); err != nil {
		respond.FromError(c, err, "failed to delete group")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listMembers(c *gin.Context) {
	middleware.SetGroupID(c, c.Param("id"))
	members, err := h.Svc.ListMembers(c.Request.Context(), middleware.OrgIDFromContext(c), c.Param("id"))
	if err != nil {
		respond.FromError(c, err, "failed to list members")
		return
	}
	respond.OK(c, gin.H{"items": members})
}

func (h *Handler) addMember(c *gin.Context) {
	middleware.SetGroupID(c, c.Param("id"))
	middleware.SetCompanyID(c, c.Param("companyId"))
	g, err := h.Svc.AddCompany(c.Request.Context(), middleware.OrgIDFromContext(c), c.Param("id"), c.Param("companyId"))
	if err != nil {
		respond.FromError(c, err, "failed to add member")
		return
	}
	respond.OK(c, g)
}

func (h *Handler) removeMember(c *gin.Context) {
	middleware.SetGroupID(c, c.Param("id"))
	middleware.SetCompanyID(c, c.Param("companyId"))
	g, err := h.Svc.RemoveCompany(c.Request.Context(), middleware.OrgIDFromContext(c), c.Param("id"), c.Param("companyId"))
	if err != nil {
		respond.FromError(c, err, "failed to remove member")
		return
	}
	respond.OK(c, g)
}

type upsertCompanyRequest struct {
	ID         string   `json:"id"`
	Name       string   `json:"name" binding:"required"`
	Ticker     string   `json:"ticker"`
	ISIN       string   `json:"isin"`
	AutoEmail  bool     `json:"autoEmail"`
	Recipients []string `json:"recipients"`
}

func (h *Handler) upsertCompany(c *gin.Context) {
	var req upsertCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid company payload", nil)
		return
	}
	company, err := h.Svc.UpsertCompany(c.Request.Context(), middleware.OrgIDFromContext(c), UpsertCompanyInput(req))
	if err != nil {
		respond.FromError(c, err, "failed to save company")
		return
	}
	middleware.SetCompanyID(c, company.ID)
	respond.JSON(c, http.StatusCreated, company)
}

// listCompanies lists every company, or searches when ?q= is present.
func (h *Handler) listCompanies(c *gin.Context) {
	var (
		companies []Company
		err       error
	)
	if q, ok := c.GetQuery("q"); ok {
		limit, _ := strconv.Atoi(c.Query("limit"))
		companies, err = h.Svc.SearchCompanies(c.Request.Context(), middleware.OrgIDFromContext(c), q, limit)
	} else {
		companies, err = h.Svc.ListCompanies(c.Request.Context(), middleware.OrgIDFromContext(c))
	}
	if err != nil {
		respond.FromError(c, err, "failed to list companies")
		return
	}
	respond.OK(c, gin.H{"items": companies})
}

func (h *Handler) getCompany(c *gin.Context) {
	middleware.SetCompanyID(c, c.Param("id"))
	company, err := h.Svc.GetCompany(c.Request.Context(), middleware.OrgIDFromContext(c), c.Param("id"))
	if err != nil {
		respond.FromError(c, err, "failed to fetch company")
		return
	}
	groups, err := h.Svc.GroupsForCompany(c.Request.Context(), company.ID)
	if err != nil {
		respond.FromError(c, err, "failed to fetch company")
		return
	}
	groupIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
	}
	respond.OK(c, gin.H{"company": company, "groups": groupIDs})
}

type autoEmailRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) setAutoEmail(target scope.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req autoEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "enabled is required", nil)
			return
		}
		if err := h.Svc.SetAutoEmail(c.Request.Context(), middleware.OrgIDFromContext(c), target, c.Param("id"), *req.Enabled); err != nil {
			respond.FromError(c, err, "failed to update auto-email")
			return
		}
		respond.OK(c, gin.H{"id": c.Param("id"), "scope": target, "autoEmail": *req.Enabled})
	}
}

type recipientsRequest struct {
	Recipients []string `json:"recipients"`
}

func (h *Handler) setRecipients(target scope.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recipientsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid recipients payload", nil)
			return
		}
		list, err := h.Svc.SetRecipients(c.Request.Context(), middleware.OrgIDFromContext(c), target, c.Param("id"), req.Recipients)
		if err != nil {
			respond.FromError(c, err, "failed to update recipients")
			return
		}
		respond.OK(c, gin.H{"id": c.Param("id"), "scope": target, "recipients": list})
	}
}
