package main

import (
  "context"
  "fmt"
  "os"
  "os/signal"
  "syscall"
  "time"
  "github.com/twinforge/twinforge-backend/internal/config"
  "github.com/twinforge/twinforge-backend/internal/db"
  "github.com/twinforge/twinforge-backend/internal/handlers"
  "github.com/twinforge/twinforge-backend/internal/logger"
  "github.com/twinforge/twinforge-backend/internal/middleware"
  "github.com/twinforge/twinforge-backend/internal/observability"
  "github.com/twinforge/twinforge-backend/internal/repos"
  "github.com/twinforge/twinforge-backend/internal/server"
  "github.com/twinforge/twinforge-backend/internal/services"
  "github.com/twinforge/twinforge-backend/internal/sse"
  "github.com/twinforge/twinforge-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
  defer stop()

  // Tracing
  otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
    ServiceName: "twinforge",
    Environment: os.Getenv("ENVIRONMENT"),
    Version:     os.Getenv("SERVICE_VERSION"),
  })
  if otelShutdown != nil {
    defer func() {
      shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
      defer cancel()
      _ = otelShutdown(shutdownCtx)
    }()
  }

  // Config
  log.Info("Loading configuration from main...")
  ingestionCfg := config.LoadIngestionConfig(log)
  executionCfg := config.LoadExecutionConfig(log)
  learningCfg := config.LoadLearningConfig(log)
  telemetryCfg := config.LoadTelemetryConfig(log)
  authCfg := config.LoadAuthConfig(log)

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Fatal("Postgres init failed", "error", err)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  twinRepo := repos.NewTwinRepo(thePG, log)
  sourceRepo := repos.NewSourceRepo(thePG, log)
  ingestionJobRepo := repos.NewIngestionJobRepo(thePG, log)
  claimRepo := repos.NewClaimRepo(thePG, log)
  bioVariantRepo := repos.NewBioVariantRepo(thePG, log)
  feedbackEventRepo := repos.NewFeedbackEventRepo(thePG, log)
  learningJobRepo := repos.NewLearningJobRepo(thePG, log)
  personaVersionRepo := repos.NewPersonaVersionRepo(thePG, log)

  // SSE
  log.Info("Setting up SSE hub now...")
  sseHub := sse.NewSSEHub(log)

  // Services
  log.Info("Setting up Services from main...")
  authService := services.NewAuthService(log, authCfg, twinRepo)
  sourceService := services.NewSourceService(thePG, log, sourceRepo)
  contentProvider := services.NewPasteContentProvider(log)
  claimExtractor := services.NewClaimExtractor(log)
  personaCompiler := services.NewPersonaCompiler(thePG, log, ingestionCfg, twinRepo, claimRepo, sourceRepo, bioVariantRepo)
  ingestionService := services.NewIngestionService(
    thePG, log, ingestionCfg,
    twinRepo, sourceRepo, ingestionJobRepo, claimRepo, personaVersionRepo,
    sourceService, contentProvider, claimExtractor, personaCompiler, sseHub,
  )
  claimService := services.NewClaimService(thePG, log, claimRepo)
  feedbackService := services.NewFeedbackService(thePG, log, feedbackEventRepo)
  regressionGate, err := services.NewRegressionGate(log, learningCfg.DatasetPath)
  if err != nil {
    log.Fatal("Regression gate init failed", "error", err)
  }
  learningService := services.NewLearningService(
    thePG, log, learningCfg,
    twinRepo, learningJobRepo, feedbackEventRepo, personaVersionRepo,
    personaCompiler, regressionGate, sseHub,
  )
  executionGate := services.NewExecutionGate(log, executionCfg)
  turnTelemetry := services.NewTurnTelemetry(log, telemetryCfg)

  // Workers
  log.Info("Starting workers from main...")
  go ingestionService.StartWorker(ctx)
  go learningService.StartWorker(ctx)

  // Handlers
  log.Info("Setting up Handlers from main...")
  authMiddleware := middleware.NewAuthMiddleware(log, authService)
  routerCfg := server.RouterConfig{
    AuthMiddleware:   authMiddleware,
    IngestionHandler: handlers.NewIngestionHandler(ingestionService),
    ClaimsHandler:    handlers.NewClaimsHandler(claimService),
    BiosHandler:      handlers.NewBiosHandler(bioVariantRepo),
    FeedbackHandler:  handlers.NewFeedbackHandler(feedbackService),
    LearningHandler:  handlers.NewLearningHandler(learningService),
    TurnHandler:      handlers.NewTurnHandler(executionGate, turnTelemetry),
    SSEHandler:       handlers.NewSSEHandler(sseHub),
  }
  router := server.NewRouter(routerCfg)

  port := utils.GetEnv("PORT", "8080", log)
  log.Info("Starting server", "port", port)
  if err := router.Run(":" + port); err != nil {
    log.Fatal("Server exited", "error", err)
  }
}
