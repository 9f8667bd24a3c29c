package trigger

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"transcript-backend/internal/shared/server/middleware"
	"transcript-backend/internal/shared/server/respond"
)

const maxUploadSize = 20 << 20 // 20MB

// Documents stores uploaded transcript documents.
type Documents interface {
	SaveDocument(ctx context.Context, companyID, fileName string, r io.Reader) (string, error)
}

// Handler exposes arrivals, manual runs and dead letters.
type Handler struct {
	Engine    *Engine
	Documents Documents
}

// NewHandler constructs a Handler.
func NewHandler(engine *Engine, docs Documents) *Handler {
	return &Handler{Engine: engine, Documents: docs}
}

// RegisterRoutes attaches trigger routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/arrivals", h.arrival)
	rg.POST("/groups/:id/run", h.runGroup)
	rg.POST("/companies/:id/run", h.runCompany)
	rg.GET("/dead-letters", h.deadLetters)
}

func (h *Handler) arrival(c *gin.Context) {
	var a Arrival
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		var ok bool
		if a, ok = h.uploadArrival(c); !ok {
			return
		}
	} else if err := c.ShouldBindJSON(&a); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid arrival payload", nil)
		return
	}
	middleware.SetCompanyID(c, a.CompanyID)

	out, err := h.Engine.HandleArrival(c.Request.Context(), a)
	if err != nil {
		respond.FromError(c, err, "failed to handle arrival")
		return
	}
	respond.JSON(c, http.StatusAccepted, out)
}

// uploadArrival stores the multipart "file" and builds the arrival from the
// companyId, period and optional receivedAt form fields.
func (h *Handler) uploadArrival(c *gin.Context) (Arrival, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	a := Arrival{
		CompanyID: strings.TrimSpace(c.PostForm("companyId")),
		Period:    strings.TrimSpace(c.PostForm("period")),
	}
	if raw := strings.TrimSpace(c.PostForm("receivedAt")); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "receivedAt must be RFC3339", nil)
			return Arrival{}, false
		}
		a.ReceivedAt = at
	}
	if a.CompanyID == "" || a.Period == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "companyId and period are required", nil)
		return Arrival{}, false
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return Arrival{}, false
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return Arrival{}, false
	}
	defer file.Close()

	key, err := h.Documents.SaveDocument(c.Request.Context(), a.CompanyID, fileHeader.Filename, file)
	if err != nil {
		respond.FromError(c, err, "failed to store transcript")
		return Arrival{}, false
	}
	a.DocumentRef = key
	return a, true
}

type runRequest struct {
	Period string `json:"period"`
	Nonce  string `json:"nonce"`
}

func (h *Handler) bindRun(c *gin.Context) (RunRequest, bool) {
	var req runRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid run payload", nil)
			return RunRequest{}, false
		}
	}
	return RunRequest{
		OrgID:    middleware.OrgIDFromContext(c),
		TargetID: c.Param("id"),
		Period:   req.Period,
		Nonce:    req.Nonce,
	}, true
}

func (h *Handler) runGroup(c *gin.Context) {
	middleware.SetGroupID(c, c.Param("id"))
	req, ok := h.bindRun(c)
	if !ok {
		return
	}
	j, created, err := h.Engine.RunNowGroup(c.Request.Context(), req)
	if err != nil {
		respond.FromError(c, err, "failed to run group")
		return
	}
	middleware.SetJobID(c, j.ID)
	respond.JSON(c, runStatus(created), j)
}

func (h *Handler) runCompany(c *gin.Context) {
	middleware.SetCompanyID(c, c.Param("id"))
	req, ok := h.bindRun(c)
	if !ok {
		return
	}
	j, created, err := h.Engine.RunNowCompany(c.Request.Context(), req)
	if err != nil {
		respond.FromError(c, err, "failed to run company")
		return
	}
	middleware.SetJobID(c, j.ID)
	respond.JSON(c, runStatus(created), j)
}

func runStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (h *Handler) deadLetters(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.Engine.ListDeadLetters(c.Request.Context(), limit)
	if err != nil {
		respond.FromError(c, err, "failed to list dead letters")
		return
	}
	respond.OK(c, gin.H{"items": items})
}
