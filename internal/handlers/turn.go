package handlers

import (
	"errors"
	"net/http"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/twinforge/twinforge-backend/internal/requestdata"
	"github.com/twinforge/twinforge-backend/internal/services"
)

// TurnHandler is the conversational entry point. Every turn is classified,
// gated, and counted; the decision is returned to the caller as data.
type TurnHandler struct {
	gate      services.ExecutionGate
	telemetry services.TurnTelemetry
}

func NewTurnHandler(gate services.ExecutionGate, telemetry services.TurnTelemetry) *TurnHandler {
	return &TurnHandler{gate: gate, telemetry: telemetry}
}

type turnRequest struct {
	TwinID          string `json:"twin_id"`
	TurnRef         string `json:"turn_ref"`
	Message         string `json:"message"`
	ActionRequested bool   `json:"action_requested"`
	MissingParams   bool   `json:"missing_params"`
}

// POST /api/turns
func (h *TurnHandler) HandleTurn(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	twinID, err := uuid.Parse(req.TwinID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_twin_id", err)
		return
	}
	rd := requestdata.GetRequestData(c.Request.Context())
	// The turn is bound to the twin the auth layer resolved; a client cannot
	// point it at a different (allowlisted) twin by editing the body.
	if rd != nil && rd.TwinID != uuid.Nil && rd.TwinID != twinID {
		RespondError(c, http.StatusForbidden, "twin_mismatch",
			errors.New("turn twin does not match authenticated twin"))
		return
	}
	turnCtx := services.ClassifyContext(rd)
	turn := services.ConversationTurn{
		TwinID:          twinID,
		TurnRef:         req.TurnRef,
		Message:         req.Message,
		ActionRequested: req.ActionRequested,
		MissingParams:   req.MissingParams,
	}
	if rd != nil {
		turn.TenantID = rd.TenantID
	}
	decision := services.GateDecision{Outcome: services.OutcomeAnswered, Guard: "none"}
	if req.ActionRequested {
		decision = h.gate.Authorize(turnCtx, turn)
	}
	h.telemetry.Record(turn, turnCtx, services.BuildTurnCounters(turnCtx, turn, decision))
	RespondOK(c, gin.H{
		"context": string(turnCtx),
		"outcome": string(decision.Outcome),
		"guard":   decision.Guard,
	})
}
