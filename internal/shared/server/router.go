package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"transcript-backend/internal/jobs"
	"transcript-backend/internal/prompts"
	"transcript-backend/internal/quota"
	"transcript-backend/internal/registry"
	"transcript-backend/internal/retrieval"
	"transcript-backend/internal/services/health"
	"transcript-backend/internal/shared/config"
	"transcript-backend/internal/shared/metrics"
	"transcript-backend/internal/shared/server/middleware"
	"transcript-backend/internal/shared/server/respond"
	"transcript-backend/internal/transcripts"
	"transcript-backend/internal/trigger"
	"transcript-backend/internal/uploads"
)

// Paths outside the org-scoped API.
const (
	HealthPath   = "/api/v1/health"
	MetricsPath  = "/metrics"
	ArrivalsPath = "/api/v1/arrivals"
)

// Rate limit groups for LLM-backed endpoints.
const (
	rateGroupAsk = "ASK"
	rateGroupRun = "RUN"
)

// RouterDeps lists the handlers mounted under /api/v1. Nil handlers are skipped.
type RouterDeps struct {
	Config   config.Config
	KnownOrg middleware.OrgLookup
	Health   *health.Service

	RegistryHandler    *registry.Handler
	PromptsHandler     *prompts.Handler
	TranscriptsHandler *transcripts.Handler
	JobsHandler        *jobs.Handler
	QuotaHandler       *quota.Handler
	TriggerHandler     *trigger.Handler
	RetrievalHandler   *retrieval.Handler
	UploadsHandler     *uploads.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET(HealthPath, func(c *gin.Context) {
		out, ok := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, out)
	})
	r.GET(MetricsPath, metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(
		middleware.Tenant(deps.KnownOrg, ArrivalsPath),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				rateGroupAsk: {Rate: 1, Burst: 5},
				rateGroupRun: {Rate: 0.5, Burst: 5},
			},
			GroupFor: rateGroupFor,
		}),
	)

	if deps.RegistryHandler != nil {
		deps.RegistryHandler.RegisterRoutes(api)
	}
	if deps.PromptsHandler != nil {
		deps.PromptsHandler.RegisterRoutes(api)
	}
	if deps.TranscriptsHandler != nil {
		deps.TranscriptsHandler.RegisterRoutes(api)
	}
	if deps.JobsHandler != nil {
		deps.JobsHandler.RegisterRoutes(api)
	}
	if deps.QuotaHandler != nil {
		deps.QuotaHandler.RegisterRoutes(api)
	}
	if deps.TriggerHandler != nil {
		deps.TriggerHandler.RegisterRoutes(api)
	}
	if deps.RetrievalHandler != nil {
		deps.RetrievalHandler.RegisterRoutes(api)
	}
	if deps.UploadsHandler != nil {
		deps.UploadsHandler.RegisterRoutes(api)
	}

	return r
}

func rateGroupFor(c *gin.Context) string {
	if c.Request.Method != http.MethodPost {
		return ""
	}
	switch c.FullPath() {
	case "/api/v1/ask":
		return rateGroupAsk
	case "/api/v1/groups/:id/run", "/api/v1/companies/:id/run":
		return rateGroupRun
	}
	return ""
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
