package services

import (
	"github.com/google/uuid"

	"github.com/twinforge/twinforge-backend/internal/requestdata"
)

// TurnContext labels where a conversational turn came from. The classifier is
// total and fails closed: anything it cannot positively identify as an owner
// session is treated as a public share.
type TurnContext string

const (
	ContextOwnerTraining TurnContext = "owner_training"
	ContextOwner         TurnContext = "owner"
	ContextWidget        TurnContext = "widget"
	ContextPublicShare   TurnContext = "public_share"
)

// ActionCapableContext reports whether the action lane may even be considered
// for this context. Widget and public share turns are excluded unconditionally.
func ActionCapableContext(c TurnContext) bool {
	return c == ContextOwner || c == ContextOwnerTraining
}

// ConversationTurn is the ephemeral per-request record the gate and telemetry
// operate on. It is never persisted.
type ConversationTurn struct {
	TwinID          uuid.UUID
	TenantID        string
	TurnRef         string
	Message         string
	ActionRequested bool
	MissingParams   bool
}

// ClassifyContext derives the turn context from authenticated request
// metadata. Pure and deterministic: same input, same answer, and it never
// returns owner for anything ambiguous.
func ClassifyContext(rd *requestdata.RequestData) TurnContext {
	if rd == nil {
		return ContextPublicShare
	}
	switch rd.Origin {
	case requestdata.OriginOwnerSession:
		if rd.UserID == uuid.Nil || !rd.OwnerOfTwin {
			return ContextPublicShare
		}
		if rd.TrainingSession {
			return ContextOwnerTraining
		}
		return ContextOwner
	case requestdata.OriginWidgetEmbed:
		return ContextWidget
	case requestdata.OriginShareLink:
		return ContextPublicShare
	default:
		return ContextPublicShare
	}
}
