package handlers

import (
	"net/http"
	"strconv"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/twinforge/twinforge-backend/internal/services"
)

type ClaimsHandler struct {
	claims services.ClaimService
}

func NewClaimsHandler(claims services.ClaimService) *ClaimsHandler {
	return &ClaimsHandler{claims: claims}
}

// GET /api/claims?twin_id=...&min_confidence=...
func (h *ClaimsHandler) List(c *gin.Context) {
	twinID, err := uuid.Parse(c.Query("twin_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_twin_id", err)
		return
	}
	minConfidence := 0.3
	if raw := c.Query("min_confidence"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			RespondError(c, http.StatusBadRequest, "invalid_min_confidence", err)
			return
		}
		minConfidence = parsed
	}
	claims, err := h.claims.List(c.Request.Context(), nil, twinID, minConfidence)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_claims_failed", err)
		return
	}
	RespondOK(c, gin.H{"claims": claims})
}

type reviewClaimRequest struct {
	Action string `json:"action"`
}

// POST /api/claims/:id/review
func (h *ClaimsHandler) Review(c *gin.Context) {
	claimID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_claim_id", err)
		return
	}
	var req reviewClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	claim, err := h.claims.Review(c.Request.Context(), nil, claimID, req.Action)
	if err != nil {
		RespondError(c, http.StatusConflict, "review_failed", err)
		return
	}
	RespondOK(c, gin.H{"claim": claim})
}
