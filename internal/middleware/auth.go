package middleware

import (
  "net/http"
  "strings"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/twinforge/twinforge-backend/internal/logger"
  "github.com/twinforge/twinforge-backend/internal/requestdata"
  "github.com/twinforge/twinforge-backend/internal/services"
)

type AuthMiddleware struct {
  log         *logger.Logger
  authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
  return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), authService: authService}
}

// RequireOwner admits only authenticated owner sessions. Every mutating route
// sits behind this.
func (am *AuthMiddleware) RequireOwner() gin.HandlerFunc {
  return func(c *gin.Context) {
    tokenString := extractToken(c)
    if tokenString == "" {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
      return
    }
    ctx, err := am.authService.SetContextFromToken(c.Request.Context(), tokenString)
    if err != nil {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
      return
    }
    c.Request = c.Request.WithContext(ctx)
    rd := requestdata.GetRequestData(ctx)
    if rd == nil || rd.UserID == uuid.Nil {
      c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
      return
    }
    c.Next()
  }
}

// ResolveAny resolves whichever credential the request carries: owner JWT,
// widget embed key, or share token. Requests with none of them still pass,
// unauthenticated, so the context classifier can fail them closed later.
func (am *AuthMiddleware) ResolveAny() gin.HandlerFunc {
  return func(c *gin.Context) {
    ctx := c.Request.Context()
    if tokenString := extractToken(c); tokenString != "" {
      resolved, err := am.authService.SetContextFromToken(ctx, tokenString)
      if err == nil {
        c.Request = c.Request.WithContext(resolved)
        c.Next()
        return
      }
      am.log.Debug("owner token rejected", "error", err.Error())
    }
    if embedKey := c.GetHeader("X-Embed-Key"); embedKey != "" {
      twinID, err := uuid.Parse(c.GetHeader("X-Twin-ID"))
      if err == nil {
        resolved, err := am.authService.SetContextFromEmbedKey(ctx, twinID, embedKey)
        if err == nil {
          c.Request = c.Request.WithContext(resolved)
          c.Next()
          return
        }
        am.log.Debug("embed key rejected", "error", err.Error())
      }
    }
    if shareToken := c.Query("share"); shareToken != "" {
      resolved, err := am.authService.SetContextFromShareToken(ctx, shareToken)
      if err == nil {
        c.Request = c.Request.WithContext(resolved)
        c.Next()
        return
      }
      am.log.Debug("share token rejected", "error", err.Error())
    }
    c.Next()
  }
}

func extractToken(c *gin.Context) string {
  if qToken := c.Query("token"); qToken != "" {
    return qToken
  }
  authHeader := c.GetHeader("Authorization")
  if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
    return authHeader[7:]
  }
  return ""
}
