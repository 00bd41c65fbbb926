package config

import (
	"time"

	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/utils"
)

// Config structs are loaded once at startup and handed to services at
// construction. Services never read the environment themselves, so a test can
// inject any configuration it wants.

type IngestionConfig struct {
	FetchRetries              int
	FetchBackoff              time.Duration
	SourceTimeout             time.Duration
	MaxParallelSources        int
	MinConfidence             float64
	IncludePendingInCompile   bool
	PendingCompileMinConfidence float64
}

type ExecutionConfig struct {
	Enabled            bool
	RequireApproval    bool
	MaxSteps           int
	Timeout            time.Duration
	AllowlistTwinIDs   map[string]bool
	AllowlistTenantIDs map[string]bool
}

// AllowlistEmpty reports whether no rollout restriction is configured at all.
func (c ExecutionConfig) AllowlistEmpty() bool {
	return len(c.AllowlistTwinIDs) == 0 && len(c.AllowlistTenantIDs) == 0
}

type LearningConfig struct {
	MinEvents         int
	Cooldown          time.Duration
	AutoPublish       bool
	RunRegressionGate bool
	DatasetPath       string
}

type TelemetryConfig struct {
	WindowSize        time.Duration
	MinSampleDefault  int
	MinSamplePublic   int
}

type AuthConfig struct {
	JWTSecretKey string
}

func LoadIngestionConfig(log *logger.Logger) IngestionConfig {
	cfg := IngestionConfig{
		FetchRetries:                utils.GetEnvAsInt("SOURCE_FETCH_RETRIES", 3, log),
		FetchBackoff:                time.Duration(utils.GetEnvAsInt("SOURCE_FETCH_BACKOFF_MS", 500, log)) * time.Millisecond,
		SourceTimeout:               time.Duration(utils.GetEnvAsInt("SOURCE_TIMEOUT_SECONDS", 30, log)) * time.Second,
		MaxParallelSources:          utils.GetEnvAsInt("MAX_PARALLEL_SOURCES", 4, log),
		MinConfidence:               utils.GetEnvAsFloat("CLAIM_MIN_CONFIDENCE", 0.3, log),
		IncludePendingInCompile:     utils.GetEnvAsBool("COMPILE_INCLUDE_PENDING", false, log),
		PendingCompileMinConfidence: utils.GetEnvAsFloat("COMPILE_PENDING_MIN_CONFIDENCE", 0.85, log),
	}
	// A zero or negative budget would skip fetching entirely; one parallel
	// slot is likewise the floor (errgroup treats a zero limit as "none").
	if cfg.FetchRetries < 1 {
		log.Warn("SOURCE_FETCH_RETRIES below 1, clamping", "configured", cfg.FetchRetries)
		cfg.FetchRetries = 1
	}
	if cfg.MaxParallelSources < 1 {
		log.Warn("MAX_PARALLEL_SOURCES below 1, clamping", "configured", cfg.MaxParallelSources)
		cfg.MaxParallelSources = 1
	}
	return cfg
}

func LoadExecutionConfig(log *logger.Logger) ExecutionConfig {
	return ExecutionConfig{
		Enabled:            utils.GetEnvAsBool("ENABLED", false, log),
		RequireApproval:    utils.GetEnvAsBool("REQUIRE_APPROVAL", true, log),
		MaxSteps:           utils.GetEnvAsInt("MAX_STEPS", 8, log),
		Timeout:            time.Duration(utils.GetEnvAsInt("TIMEOUT_SECONDS", 120, log)) * time.Second,
		AllowlistTwinIDs:   toSet(utils.GetEnvAsCSV("ALLOWLIST_TWIN_IDS", log)),
		AllowlistTenantIDs: toSet(utils.GetEnvAsCSV("ALLOWLIST_TENANT_IDS", log)),
	}
}

func LoadLearningConfig(log *logger.Logger) LearningConfig {
	return LearningConfig{
		MinEvents:         utils.GetEnvAsInt("MIN_EVENTS", 20, log),
		Cooldown:          time.Duration(utils.GetEnvAsInt("COOLDOWN_MINUTES", 60, log)) * time.Minute,
		AutoPublish:       utils.GetEnvAsBool("AUTO_PUBLISH", false, log),
		RunRegressionGate: utils.GetEnvAsBool("RUN_REGRESSION_GATE", true, log),
		DatasetPath:       utils.GetEnv("REGRESSION_DATASET_PATH", "", log),
	}
}

func LoadTelemetryConfig(log *logger.Logger) TelemetryConfig {
	return TelemetryConfig{
		WindowSize:       time.Duration(utils.GetEnvAsInt("TELEMETRY_WINDOW_MINUTES", 5, log)) * time.Minute,
		MinSampleDefault: utils.GetEnvAsInt("TELEMETRY_MIN_SAMPLE", 100, log),
		MinSamplePublic:  utils.GetEnvAsInt("TELEMETRY_MIN_SAMPLE_PUBLIC", 50, log),
	}
}

func LoadAuthConfig(log *logger.Logger) AuthConfig {
	return AuthConfig{
		JWTSecretKey: utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),
	}
}

func toSet(vals []string) map[string]bool {
	if len(vals) == 0 {
		return nil
	}
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		out[v] = true
	}
	return out
}
