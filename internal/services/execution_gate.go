package services

import (
	"github.com/twinforge/twinforge-backend/internal/config"
	"github.com/twinforge/twinforge-backend/internal/logger"
)

// GateOutcome is a first-class decision, not an error. Callers branch on it.
type GateOutcome string

const (
	OutcomeForbiddenContext GateOutcome = "forbidden_context"
	OutcomeNotAllowlisted   GateOutcome = "not_allowlisted"
	OutcomeNeedsApproval    GateOutcome = "needs_approval"
	OutcomeExecuted         GateOutcome = "executed"
	// OutcomeAnswered marks a plain conversational turn that never entered the
	// action lane. It sets no outcome counter; only the gate produces executed.
	OutcomeAnswered GateOutcome = "answered"
)

type GateDecision struct {
	Outcome GateOutcome
	Guard   string
}

type ExecutionGate interface {
	Authorize(turnCtx TurnContext, turn ConversationTurn) GateDecision
}

// guardFunc evaluates one named policy. ok=false means the guard passed and
// evaluation continues to the next one.
type guardFunc func(turnCtx TurnContext, turn ConversationTurn) (GateOutcome, bool)

type namedGuard struct {
	name string
	fn   guardFunc
}

type executionGate struct {
	log    *logger.Logger
	cfg    config.ExecutionConfig
	guards []namedGuard
}

// NewExecutionGate builds the gate with its guard order fixed at construction.
// The context guard is pinned first: a misconfigured allowlist must never be
// able to re-open execution to widget or public-share turns, so that check runs
// before allowlist evaluation, unconditionally.
func NewExecutionGate(baseLog *logger.Logger, cfg config.ExecutionConfig) ExecutionGate {
	g := &executionGate{
		log: baseLog.With("service", "ExecutionGate"),
		cfg: cfg,
	}
	g.guards = []namedGuard{
		{name: "forbidden_context", fn: g.guardForbiddenContext},
		{name: "lane_disabled", fn: g.guardLaneDisabled},
		{name: "allowlist", fn: g.guardAllowlist},
		{name: "approval", fn: g.guardApproval},
	}
	return g
}

func (g *executionGate) Authorize(turnCtx TurnContext, turn ConversationTurn) GateDecision {
	for _, guard := range g.guards {
		if outcome, hit := guard.fn(turnCtx, turn); hit {
			g.log.Debug("Execution gate decision",
				"guard", guard.name,
				"outcome", string(outcome),
				"context", string(turnCtx),
				"twin_id", turn.TwinID,
			)
			return GateDecision{Outcome: outcome, Guard: guard.name}
		}
	}
	g.log.Debug("Execution gate decision",
		"guard", "none",
		"outcome", string(OutcomeExecuted),
		"context", string(turnCtx),
		"twin_id", turn.TwinID,
	)
	return GateDecision{Outcome: OutcomeExecuted, Guard: "none"}
}

func (g *executionGate) guardForbiddenContext(turnCtx TurnContext, _ ConversationTurn) (GateOutcome, bool) {
	if !ActionCapableContext(turnCtx) {
		return OutcomeForbiddenContext, true
	}
	return "", false
}

// A disabled lane denies everyone, but it is a rollout denial, not a context
// one: forbidden_context stays reserved for channel violations so its counter
// keeps meaning what it says.
func (g *executionGate) guardLaneDisabled(_ TurnContext, _ ConversationTurn) (GateOutcome, bool) {
	if !g.cfg.Enabled {
		return OutcomeNotAllowlisted, true
	}
	return "", false
}

func (g *executionGate) guardAllowlist(_ TurnContext, turn ConversationTurn) (GateOutcome, bool) {
	if g.cfg.AllowlistEmpty() {
		return "", false
	}
	if g.cfg.AllowlistTwinIDs[turn.TwinID.String()] {
		return "", false
	}
	if turn.TenantID != "" && g.cfg.AllowlistTenantIDs[turn.TenantID] {
		return "", false
	}
	return OutcomeNotAllowlisted, true
}

func (g *executionGate) guardApproval(_ TurnContext, _ ConversationTurn) (GateOutcome, bool) {
	if g.cfg.RequireApproval {
		return OutcomeNeedsApproval, true
	}
	return "", false
}
