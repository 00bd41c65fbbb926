package services

import (
	"sync"
	"time"

	"github.com/twinforge/twinforge-backend/internal/config"
	"github.com/twinforge/twinforge-backend/internal/logger"
)

// The counter vocabulary is closed at compile time. Unknown names are rejected
// at the boundary instead of leaking arbitrary keys into the telemetry stream.
const (
	CounterRouted                   = "deepagents_routed_rate"
	CounterForbiddenContext         = "deepagents_forbidden_context_rate"
	CounterNotAllowlisted           = "deepagents_not_allowlisted_rate"
	CounterMissingParams            = "deepagents_missing_params_rate"
	CounterNeedsApproval            = "deepagents_needs_approval_rate"
	CounterExecuted                 = "deepagents_executed_rate"
	CounterPublicGuard              = "public_action_query_guarded_rate"
	CounterSelectionRecoveryFailure = "selection_recovery_failure_rate"
)

var counterVocabulary = map[string]bool{
	CounterRouted:                   true,
	CounterForbiddenContext:         true,
	CounterNotAllowlisted:           true,
	CounterMissingParams:            true,
	CounterNeedsApproval:            true,
	CounterExecuted:                 true,
	CounterPublicGuard:              true,
	CounterSelectionRecoveryFailure: true,
}

// BuildTurnCounters derives the per-turn 0/1 counter set from a gate decision.
// Every counter is emitted exactly once per turn.
//
// deepagents_forbidden_context_rate tracks context violations only; allowlist
// denials get their own counter so rollout visibility is not blind.
func BuildTurnCounters(turnCtx TurnContext, turn ConversationTurn, decision GateDecision) map[string]int {
	counters := map[string]int{
		CounterRouted:                   0,
		CounterForbiddenContext:         0,
		CounterNotAllowlisted:           0,
		CounterMissingParams:            0,
		CounterNeedsApproval:            0,
		CounterExecuted:                 0,
		CounterPublicGuard:              0,
		CounterSelectionRecoveryFailure: 0,
	}
	if turn.ActionRequested {
		counters[CounterRouted] = 1
	}
	if turn.MissingParams {
		counters[CounterMissingParams] = 1
	}
	if turn.ActionRequested && !ActionCapableContext(turnCtx) {
		counters[CounterPublicGuard] = 1
	}
	switch decision.Outcome {
	case OutcomeForbiddenContext:
		counters[CounterForbiddenContext] = 1
	case OutcomeNotAllowlisted:
		counters[CounterNotAllowlisted] = 1
	case OutcomeNeedsApproval:
		counters[CounterNeedsApproval] = 1
	case OutcomeExecuted:
		counters[CounterExecuted] = 1
	}
	return counters
}

type TurnTelemetry interface {
	// Record is best-effort: it must never fail or delay the turn it observes.
	Record(turn ConversationTurn, turnCtx TurnContext, counters map[string]int)
	// Rate returns the windowed rate and sample count for the current window.
	Rate(name string) (float64, int)
	// BreachPersisted reports whether the counter's rate met or exceeded the
	// threshold in the two most recently completed windows, each with enough
	// samples. Single-window spikes do not alert.
	BreachPersisted(name string, threshold float64) bool
}

type telemetryWindow struct {
	turns int
	sums  map[string]int
}

type turnTelemetry struct {
	log *logger.Logger
	cfg config.TelemetryConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[int64]*telemetryWindow
}

func NewTurnTelemetry(baseLog *logger.Logger, cfg config.TelemetryConfig) TurnTelemetry {
	return &turnTelemetry{
		log:     baseLog.With("service", "TurnTelemetry"),
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[int64]*telemetryWindow),
	}
}

func (t *turnTelemetry) Record(turn ConversationTurn, turnCtx TurnContext, counters map[string]int) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Warn("Telemetry record panic swallowed", "panic", r)
		}
	}()

	accepted := make(map[string]interface{}, len(counters))
	t.mu.Lock()
	win := t.currentWindowLocked()
	win.turns++
	for name, val := range counters {
		if !counterVocabulary[name] {
			t.log.Warn("Dropping unknown telemetry counter", "counter", name)
			continue
		}
		if val != 0 {
			val = 1
		}
		win.sums[name] += val
		accepted[name] = val
	}
	t.pruneLocked()
	t.mu.Unlock()

	accepted["context"] = string(turnCtx)
	t.log.Info("turn_counters",
		"component", "chat_telemetry",
		"event", "turn_counters",
		"twin_id", turn.TwinID,
		"turn_ref", turn.TurnRef,
		"payload", accepted,
	)
}

func (t *turnTelemetry) Rate(name string) (float64, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	win, ok := t.windows[t.windowStart(t.now())]
	if !ok || win.turns == 0 {
		return 0, 0
	}
	return float64(win.sums[name]) / float64(win.turns), win.turns
}

func (t *turnTelemetry) BreachPersisted(name string, threshold float64) bool {
	minSample := t.minSampleFor(name)
	size := int64(t.cfg.WindowSize / time.Second)
	cur := t.windowStart(t.now())

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := int64(1); i <= 2; i++ {
		win, ok := t.windows[cur-i*size]
		if !ok || win.turns < minSample {
			return false
		}
		rate := float64(win.sums[name]) / float64(win.turns)
		if rate < threshold {
			return false
		}
	}
	return true
}

func (t *turnTelemetry) minSampleFor(name string) int {
	if name == CounterPublicGuard {
		return t.cfg.MinSamplePublic
	}
	return t.cfg.MinSampleDefault
}

func (t *turnTelemetry) windowStart(at time.Time) int64 {
	size := int64(t.cfg.WindowSize / time.Second)
	if size <= 0 {
		size = 1
	}
	return at.Unix() / size * size
}

func (t *turnTelemetry) currentWindowLocked() *telemetryWindow {
	start := t.windowStart(t.now())
	win, ok := t.windows[start]
	if !ok {
		win = &telemetryWindow{sums: make(map[string]int)}
		t.windows[start] = win
	}
	return win
}

func (t *turnTelemetry) pruneLocked() {
	size := int64(t.cfg.WindowSize / time.Second)
	if size <= 0 {
		return
	}
	cutoff := t.windowStart(t.now()) - 10*size
	for start := range t.windows {
		if start < cutoff {
			delete(t.windows, start)
		}
	}
}
