package handlers

import (
	"net/http"
	"strconv"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/twinforge/twinforge-backend/internal/services"
)

type LearningHandler struct {
	learning services.LearningService
}

func NewLearningHandler(learning services.LearningService) *LearningHandler {
	return &LearningHandler{learning: learning}
}

// GET /api/learning/jobs?twin_id=...&limit=...
func (h *LearningHandler) List(c *gin.Context) {
	twinID, err := uuid.Parse(c.Query("twin_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_twin_id", err)
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = parsed
	}
	jobs, err := h.learning.ListByTwin(c.Request.Context(), twinID, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_learning_jobs_failed", err)
		return
	}
	RespondOK(c, gin.H{"jobs": jobs})
}
