package handlers

import (
	"net/http"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/twinforge/twinforge-backend/internal/repos"
)

type BiosHandler struct {
	bios repos.BioVariantRepo
}

func NewBiosHandler(bios repos.BioVariantRepo) *BiosHandler {
	return &BiosHandler{bios: bios}
}

// GET /api/bios?twin_id=...
func (h *BiosHandler) List(c *gin.Context) {
	twinID, err := uuid.Parse(c.Query("twin_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_twin_id", err)
		return
	}
	variants, err := h.bios.GetByTwinID(c.Request.Context(), nil, twinID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_bios_failed", err)
		return
	}
	RespondOK(c, gin.H{"bios": variants})
}
