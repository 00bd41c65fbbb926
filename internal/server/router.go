package server

import (
  "github.com/gin-gonic/gin"
  "github.com/gin-contrib/cors"
  "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
  "github.com/twinforge/twinforge-backend/internal/handlers"
  "github.com/twinforge/twinforge-backend/internal/middleware"
)

type RouterConfig struct {
  AuthMiddleware   *middleware.AuthMiddleware
  IngestionHandler *handlers.IngestionHandler
  ClaimsHandler    *handlers.ClaimsHandler
  BiosHandler      *handlers.BiosHandler
  FeedbackHandler  *handlers.FeedbackHandler
  LearningHandler  *handlers.LearningHandler
  TurnHandler      *handlers.TurnHandler
  SSEHandler       *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()
  router.Use(otelgin.Middleware("twinforge"))

  // Cors
  router.Use(cors.New(cors.Config{
    AllowOrigins: []string{
      "http://localhost:80",
      "http://localhost:3000",
      "http://localhost:5174",
    },
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Embed-Key", "X-Twin-ID"},
    AllowCredentials: true,
  }))

// ===============
// || Public    ||
// ===============
  router.GET("/healthcheck", handlers.HealthCheck)

// ===============
// || Turns     ||
// ===============
  // Turns accept any credential (or none): the context classifier fails
  // unauthenticated traffic closed to public_share.
  turns := router.Group("/api")
  turns.Use(cfg.AuthMiddleware.ResolveAny())
  turns.POST("/turns", cfg.TurnHandler.HandleTurn)

// ===============
// || Protected ||
// ===============
  protected := router.Group("/api")
  protected.Use(cfg.AuthMiddleware.RequireOwner())
  // Ingestion
  protected.POST("/ingestion/jobs", cfg.IngestionHandler.Submit)
  protected.GET("/ingestion/jobs/:id", cfg.IngestionHandler.Poll)
  protected.POST("/ingestion/jobs/:id/cancel", cfg.IngestionHandler.Cancel)
  // Claims
  protected.GET("/claims", cfg.ClaimsHandler.List)
  protected.POST("/claims/:id/review", cfg.ClaimsHandler.Review)
  // Bios
  protected.GET("/bios", cfg.BiosHandler.List)
  // Feedback
  protected.POST("/feedback", cfg.FeedbackHandler.Ingest)
  // Learning
  protected.GET("/learning/jobs", cfg.LearningHandler.List)

  // SSE
  sseGroup := router.Group("/sse")
  sseGroup.Use(cfg.AuthMiddleware.RequireOwner())
  sseGroup.GET("/stream", cfg.SSEHandler.Stream)

  return router
}
