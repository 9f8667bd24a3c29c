package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	LLMProvider     string
	LLMModel        string
	LLMAPIKey       string
	LLMTimeout      time.Duration
	LLMRatePerSec   float64
	DatabaseURL     string
	Env             string
	OrgSeedFile     string
	ArrivalQueueURL string

	WorkerConcurrency int
	JobQueueSize      int
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	RolloverInterval  time.Duration

	QuotaPolicy     string
	QuotaDeferDepth int

	EmailTransport string
	EmailFrom      string
	EmailAttempts  int
}

// Load reads configuration from environment variables (and optional .env files) with sensible defaults.
func Load() Config {
	v := viper.New()
	setDefaults(v)
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(v, ".env", "cmd/.env")
	v.AutomaticEnv()

	env := normalizeEnv(v.GetString("ENV"))
	dbURL := v.GetString("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:              v.GetString("PORT"),
		CORSAllowOrigin:   splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),
		ObjectStoreType:   normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:     v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:         v.GetString("AWS_REGION"),
		S3Bucket:          v.GetString("S3_BUCKET"),
		S3Prefix:          v.GetString("S3_PREFIX"),
		SSEKMSKeyID:       v.GetString("SSE_KMS_KEY_ID"),
		LLMProvider:       strings.ToLower(strings.TrimSpace(v.GetString("LLM_PROVIDER"))),
		LLMModel:          v.GetString("LLM_MODEL"),
		LLMAPIKey:         v.GetString("OPENAI_API_KEY"),
		LLMTimeout:        v.GetDuration("LLM_TIMEOUT"),
		LLMRatePerSec:     v.GetFloat64("LLM_RATE_PER_SEC"),
		DatabaseURL:       dbURL,
		Env:               env,
		OrgSeedFile:       v.GetString("ORG_SEED_FILE"),
		ArrivalQueueURL:   strings.TrimSpace(v.GetString("ARRIVAL_SQS_QUEUE_URL")),
		WorkerConcurrency: v.GetInt("WORKER_CONCURRENCY"),
		JobQueueSize:      v.GetInt("JOB_QUEUE_SIZE"),
		MaxAttempts:       v.GetInt("JOB_MAX_ATTEMPTS"),
		RetryBaseDelay:    v.GetDuration("JOB_RETRY_BASE_DELAY"),
		RetryMaxDelay:     v.GetDuration("JOB_RETRY_MAX_DELAY"),
		RolloverInterval:  v.GetDuration("QUOTA_ROLLOVER_INTERVAL"),
		QuotaPolicy:       normalizeQuotaPolicy(v.GetString("QUOTA_POLICY")),
		QuotaDeferDepth:   v.GetInt("QUOTA_DEFER_DEPTH"),
		EmailTransport:    strings.ToLower(strings.TrimSpace(v.GetString("EMAIL_TRANSPORT"))),
		EmailFrom:         v.GetString("EMAIL_FROM"),
		EmailAttempts:     v.GetInt("EMAIL_MAX_ATTEMPTS"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("CORS_ALLOW_ORIGINS", "http://localhost:5173")
	v.SetDefault("OBJECT_STORE", "local")
	v.SetDefault("LOCAL_STORE_DIR", "./data")
	v.SetDefault("LLM_PROVIDER", "openai")
	v.SetDefault("LLM_TIMEOUT", 120*time.Second)
	v.SetDefault("LLM_RATE_PER_SEC", 2.0)
	v.SetDefault("ORG_SEED_FILE", "orgs.yaml")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("JOB_QUEUE_SIZE", 256)
	v.SetDefault("JOB_MAX_ATTEMPTS", 3)
	v.SetDefault("JOB_RETRY_BASE_DELAY", 2*time.Second)
	v.SetDefault("JOB_RETRY_MAX_DELAY", 2*time.Minute)
	v.SetDefault("QUOTA_ROLLOVER_INTERVAL", time.Minute)
	v.SetDefault("QUOTA_POLICY", "defer")
	v.SetDefault("QUOTA_DEFER_DEPTH", 100)
	v.SetDefault("EMAIL_TRANSPORT", "log")
	v.SetDefault("EMAIL_MAX_ATTEMPTS", 3)
}

// loadEnvFiles merges KEY=VALUE files into v if they exist; errors are ignored.
func loadEnvFiles(v *viper.Viper, paths ...string) {
	for _, path := range paths {
		fileCfg := viper.New()
		fileCfg.SetConfigFile(path)
		fileCfg.SetConfigType("env")
		if err := fileCfg.ReadInConfig(); err != nil {
			continue
		}
		for _, key := range fileCfg.AllKeys() {
			v.SetDefault(strings.ToUpper(key), fileCfg.Get(key))
		}
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeQuotaPolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "reject":
		return "reject"
	default:
		return "defer"
	}
}
