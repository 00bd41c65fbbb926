package handlers

import (
	"net/http"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/twinforge/twinforge-backend/internal/services"
)

type FeedbackHandler struct {
	feedback services.FeedbackService
}

func NewFeedbackHandler(feedback services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

type feedbackRequest struct {
	TwinID string                   `json:"twin_id"`
	Events []services.FeedbackInput `json:"events"`
}

// POST /api/feedback
func (h *FeedbackHandler) Ingest(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	twinID, err := uuid.Parse(req.TwinID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_twin_id", err)
		return
	}
	count, err := h.feedback.Ingest(c.Request.Context(), nil, twinID, req.Events)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "ingest_failed", err)
		return
	}
	RespondOK(c, gin.H{"ingested": count})
}
