package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/twinforge/twinforge-backend/internal/config"
)

func enabledConfig() config.ExecutionConfig {
	return config.ExecutionConfig{Enabled: true}
}

func TestGateForbiddenContextBeatsAllowlist(t *testing.T) {
	log := newTestLogger(t)
	twinID := uuid.New()
	// The allowlist explicitly contains the twin; context must still win.
	cfg := enabledConfig()
	cfg.AllowlistTwinIDs = map[string]bool{twinID.String(): true}
	gate := NewExecutionGate(log, cfg)
	for _, turnCtx := range []TurnContext{ContextWidget, ContextPublicShare} {
		decision := gate.Authorize(turnCtx, ConversationTurn{TwinID: twinID, ActionRequested: true})
		if decision.Outcome != OutcomeForbiddenContext {
			t.Fatalf("%s: outcome want=%s got=%s", turnCtx, OutcomeForbiddenContext, decision.Outcome)
		}
		if decision.Guard != "forbidden_context" {
			t.Fatalf("%s: guard want=forbidden_context got=%s", turnCtx, decision.Guard)
		}
	}
}

func TestGateNotAllowlisted(t *testing.T) {
	log := newTestLogger(t)
	t1, t2, t3 := uuid.New(), uuid.New(), uuid.New()
	cfg := enabledConfig()
	cfg.AllowlistTwinIDs = map[string]bool{t1.String(): true, t2.String(): true}
	gate := NewExecutionGate(log, cfg)

	decision := gate.Authorize(ContextOwner, ConversationTurn{TwinID: t3, ActionRequested: true})
	if decision.Outcome != OutcomeNotAllowlisted {
		t.Fatalf("outcome: want=%s got=%s", OutcomeNotAllowlisted, decision.Outcome)
	}
	// An owner-context allowlist denial is not a context violation.
	counters := BuildTurnCounters(ContextOwner, ConversationTurn{TwinID: t3, ActionRequested: true}, decision)
	if counters[CounterForbiddenContext] != 0 {
		t.Fatalf("forbidden_context counter: want=0 got=%d", counters[CounterForbiddenContext])
	}
	if counters[CounterNotAllowlisted] != 1 {
		t.Fatalf("not_allowlisted counter: want=1 got=%d", counters[CounterNotAllowlisted])
	}
}

func TestGateTenantAllowlist(t *testing.T) {
	log := newTestLogger(t)
	cfg := enabledConfig()
	cfg.AllowlistTenantIDs = map[string]bool{"acme": true}
	gate := NewExecutionGate(log, cfg)

	decision := gate.Authorize(ContextOwner, ConversationTurn{TwinID: uuid.New(), TenantID: "acme", ActionRequested: true})
	if decision.Outcome != OutcomeExecuted {
		t.Fatalf("tenant allowlisted: want=%s got=%s", OutcomeExecuted, decision.Outcome)
	}
	decision = gate.Authorize(ContextOwner, ConversationTurn{TwinID: uuid.New(), TenantID: "other", ActionRequested: true})
	if decision.Outcome != OutcomeNotAllowlisted {
		t.Fatalf("tenant not allowlisted: want=%s got=%s", OutcomeNotAllowlisted, decision.Outcome)
	}
}

func TestGateEmptyAllowlistAllowsAll(t *testing.T) {
	log := newTestLogger(t)
	gate := NewExecutionGate(log, enabledConfig())
	decision := gate.Authorize(ContextOwner, ConversationTurn{TwinID: uuid.New(), ActionRequested: true})
	if decision.Outcome != OutcomeExecuted {
		t.Fatalf("empty allowlist: want=%s got=%s", OutcomeExecuted, decision.Outcome)
	}
}

func TestGateApprovalRequired(t *testing.T) {
	log := newTestLogger(t)
	cfg := enabledConfig()
	cfg.RequireApproval = true
	gate := NewExecutionGate(log, cfg)
	decision := gate.Authorize(ContextOwner, ConversationTurn{TwinID: uuid.New(), ActionRequested: true})
	if decision.Outcome != OutcomeNeedsApproval {
		t.Fatalf("approval: want=%s got=%s", OutcomeNeedsApproval, decision.Outcome)
	}
}

func TestGateDisabledLaneDeniesWithoutContextCounter(t *testing.T) {
	log := newTestLogger(t)
	gate := NewExecutionGate(log, config.ExecutionConfig{Enabled: false})
	decision := gate.Authorize(ContextOwner, ConversationTurn{TwinID: uuid.New(), ActionRequested: true})
	if decision.Outcome != OutcomeNotAllowlisted {
		t.Fatalf("disabled lane: want=%s got=%s", OutcomeNotAllowlisted, decision.Outcome)
	}
	if decision.Guard != "lane_disabled" {
		t.Fatalf("disabled lane guard: want=lane_disabled got=%s", decision.Guard)
	}
	// Context violations still report as such even with the lane disabled.
	decision = gate.Authorize(ContextWidget, ConversationTurn{TwinID: uuid.New(), ActionRequested: true})
	if decision.Outcome != OutcomeForbiddenContext {
		t.Fatalf("disabled lane widget: want=%s got=%s", OutcomeForbiddenContext, decision.Outcome)
	}
}

func TestGateGuardOrderPinned(t *testing.T) {
	log := newTestLogger(t)
	gate := NewExecutionGate(log, enabledConfig()).(*executionGate)
	if len(gate.guards) == 0 || gate.guards[0].name != "forbidden_context" {
		t.Fatalf("first guard must be forbidden_context, got %+v", gate.guards)
	}
}
