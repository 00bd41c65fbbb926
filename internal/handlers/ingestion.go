package handlers

import (
	"net/http"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/twinforge/twinforge-backend/internal/services"
)

type IngestionHandler struct {
	ingestion services.IngestionService
}

func NewIngestionHandler(ingestion services.IngestionService) *IngestionHandler {
	return &IngestionHandler{ingestion: ingestion}
}

type submitJobRequest struct {
	TwinID  string                 `json:"twin_id"`
	Sources []services.SourceInput `json:"sources"`
}

// POST /api/ingestion/jobs
func (h *IngestionHandler) Submit(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	twinID, err := uuid.Parse(req.TwinID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_twin_id", err)
		return
	}
	job, err := h.ingestion.Submit(c.Request.Context(), twinID, req.Sources)
	if err != nil {
		RespondError(c, http.StatusConflict, "submit_failed", err)
		return
	}
	RespondOK(c, gin.H{"job_id": job.ID, "status": job.Status})
}

// GET /api/ingestion/jobs/:id
func (h *IngestionHandler) Poll(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.ingestion.Poll(c.Request.Context(), jobID)
	if err != nil {
		RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// POST /api/ingestion/jobs/:id/cancel
func (h *IngestionHandler) Cancel(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	if err := h.ingestion.Cancel(c.Request.Context(), jobID); err != nil {
		RespondError(c, http.StatusConflict, "cancel_failed", err)
		return
	}
	RespondOK(c, gin.H{"cancelled": true})
}
