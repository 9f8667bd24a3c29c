// Package bootstrap assembles the services, repositories and router shared by
// the api and worker processes.
package bootstrap

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"transcript-backend/internal/distribution"
	"transcript-backend/internal/jobs"
	"transcript-backend/internal/llm"
	openai "transcript-backend/internal/llm/openai"
	"transcript-backend/internal/orgs"
	"transcript-backend/internal/prompts"
	"transcript-backend/internal/queue"
	"transcript-backend/internal/quota"
	"transcript-backend/internal/registry"
	"transcript-backend/internal/retrieval"
	"transcript-backend/internal/scheduler"
	"transcript-backend/internal/services/health"
	"transcript-backend/internal/shared/config"
	"transcript-backend/internal/shared/server"
	"transcript-backend/internal/shared/storage/db"
	"transcript-backend/internal/shared/storage/object"
	localstore "transcript-backend/internal/shared/storage/object/local"
	s3store "transcript-backend/internal/shared/storage/object/s3"
	"transcript-backend/internal/shared/telemetry"
	"transcript-backend/internal/transcripts"
	"transcript-backend/internal/trigger"
	"transcript-backend/internal/uploads"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.Store
	Queue  queue.Client
	Orgs   *orgs.MemoryRepo

	Registry     *registry.Service
	Prompts      *prompts.Service
	Resolver     *prompts.Resolver
	Transcripts  *transcripts.Service
	Jobs         *jobs.Service
	Quota        *quota.Service
	Scheduler    *scheduler.Scheduler
	Distribution *distribution.Manager
	Engine       *trigger.Engine
	Retrieval    *retrieval.Service
	Analyzer     llm.Analyzer
}

// Options adjusts Build for a particular process.
type Options struct {
	// DBOptions overrides the connection pool defaults.
	DBOptions *db.Options
	// SkipRouter leaves App.Router nil for processes that serve no HTTP.
	SkipRouter bool
}

// Build prepares shared dependencies and, unless skipped, the HTTP router.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	orgList, err := loadOrgs(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := buildDB(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	analyzer, err := buildAnalyzer(cfg)
	if err != nil {
		return nil, err
	}

	sender, err := buildSender(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		DB:       sqlDB,
		Store:    store,
		Queue:    queueClient,
		Orgs:     orgs.NewMemoryRepo(orgList...),
		Analyzer: analyzer,
	}
	buildServices(app, sender)

	if opts.SkipRouter {
		return app, nil
	}

	deps := server.RouterDeps{
		Config:             cfg,
		KnownOrg:           app.Orgs.Exists,
		Health:             health.NewService(app.DB),
		RegistryHandler:    registry.NewHandler(app.Registry),
		PromptsHandler:     prompts.NewHandler(app.Prompts, app.Registry),
		TranscriptsHandler: transcripts.NewHandler(app.Transcripts, app.Registry),
		JobsHandler:        jobs.NewHandler(app.Jobs, app.Registry),
		QuotaHandler:       quota.NewHandler(app.Quota),
		TriggerHandler:     trigger.NewHandler(app.Engine, app.Transcripts),
		RetrievalHandler:   retrieval.NewHandler(app.Retrieval),
	}
	if cfg.ObjectStoreType == "s3" {
		up, err := uploads.NewHandler(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, app.Registry)
		if err != nil {
			return nil, err
		}
		deps.UploadsHandler = up
	}
	app.Router = server.NewRouter(deps)

	return app, nil
}

func loadOrgs(cfg config.Config) ([]orgs.Organization, error) {
	if strings.TrimSpace(cfg.OrgSeedFile) == "" {
		return nil, nil
	}
	list, err := orgs.LoadSeed(cfg.OrgSeedFile)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.org_seed_unavailable", map[string]any{
				"path":               cfg.OrgSeedFile,
				telemetry.FieldError: err,
			})
			return nil, nil
		}
		return nil, err
	}
	return list, nil
}

func buildDB(ctx context.Context, cfg config.Config, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, errors.New("DATABASE_URL is required")
	}

	poolOpts := db.DefaultServerOptions()
	if opts.DBOptions != nil {
		poolOpts = *opts.DBOptions
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(poolOpts))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{
				"reason":             "database connect failed",
				telemetry.FieldError: err,
			})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if cfg.ArrivalQueueURL == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.ArrivalQueueURL)
}

func buildAnalyzer(cfg config.Config) (llm.Analyzer, error) {
	if cfg.LLMProvider != "openai" || strings.TrimSpace(cfg.LLMAPIKey) == "" {
		telemetry.Warn("bootstrap.llm_echo", map[string]any{"provider": cfg.LLMProvider})
		return llm.EchoAnalyzer{}, nil
	}
	return openai.NewClient(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
}

func buildSender(ctx context.Context, cfg config.Config) (distribution.Sender, error) {
	if cfg.EmailTransport == "ses" {
		return distribution.NewSESSender(ctx, cfg.AWSRegion, cfg.EmailFrom)
	}
	return distribution.LogSender{}, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App, sender distribution.Sender) {
	var (
		registryRepo   registry.Repo
		promptRepo     prompts.Repo
		transcriptRepo transcripts.Repo
		jobRepo        jobs.Repo
		emailRepo      distribution.Repo
		sessionRepo    retrieval.SessionRepo
		deadLetters    trigger.DeadLetterRepo
		quotaSvc       *quota.Service
	)
	policy := quota.Policy(app.Config.QuotaPolicy)
	if app.DB != nil {
		registryRepo = &registry.PGRepo{DB: app.DB}
		promptRepo = &prompts.PGRepo{DB: app.DB}
		transcriptRepo = &transcripts.PGRepo{DB: app.DB}
		jobRepo = &jobs.PGRepo{DB: app.DB}
		emailRepo = &distribution.PGRepo{DB: app.DB}
		sessionRepo = &retrieval.PGRepo{DB: app.DB}
		deadLetters = &trigger.PGDeadLetters{DB: app.DB}
		quotaSvc = quota.NewPostgresService(quota.NewPGStore(app.DB), app.Orgs, policy, app.Config.QuotaDeferDepth)
	} else {
		registryRepo = registry.NewMemoryRepo()
		promptRepo = prompts.NewMemoryRepo()
		transcriptRepo = transcripts.NewMemoryRepo()
		jobRepo = jobs.NewMemoryRepo()
		emailRepo = distribution.NewMemoryRepo()
		sessionRepo = retrieval.NewMemoryRepo()
		deadLetters = trigger.NewMemoryDeadLetters()
		quotaSvc = quota.NewService(app.Orgs, policy, app.Config.QuotaDeferDepth)
	}

	app.Jobs = jobs.NewService(jobRepo, app.Config.MaxAttempts)
	app.Registry = registry.NewService(registryRepo, app.Jobs)
	app.Prompts = prompts.NewService(promptRepo)
	app.Resolver = prompts.NewResolver(app.Prompts, app.Registry)
	app.Transcripts = transcripts.NewService(transcriptRepo, app.Store)
	app.Quota = quotaSvc
	app.Distribution = distribution.NewManager(emailRepo, sender, app.Registry, app.Orgs, app.Store, app.Config.EmailAttempts)
	app.Scheduler = scheduler.New(scheduler.Config{
		Workers:          app.Config.WorkerConcurrency,
		QueueSize:        app.Config.JobQueueSize,
		AttemptTimeout:   app.Config.LLMTimeout,
		RetryBase:        app.Config.RetryBaseDelay,
		RetryMax:         app.Config.RetryMaxDelay,
		RolloverInterval: app.Config.RolloverInterval,
		RatePerSec:       app.Config.LLMRatePerSec,
	}, scheduler.Deps{
		Jobs:        app.Jobs,
		Quota:       app.Quota,
		Transcripts: app.Transcripts,
		Directory:   app.Registry,
		Analyzer:    app.Analyzer,
		Store:       app.Store,
		Completer:   app.Distribution,
	})
	app.Engine = trigger.NewEngine(app.Registry, app.Resolver, app.Transcripts, app.Jobs, app.Scheduler, deadLetters)

	builder := retrieval.NewBuilder(app.Registry, app.Transcripts, app.Jobs, sessionRepo, app.Store)
	app.Retrieval = retrieval.NewService(builder, sessionRepo, app.Analyzer)
}
