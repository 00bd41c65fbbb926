package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testCandidate() *PersonaSpec {
	return &PersonaSpec{
		TwinID: uuid.New(),
		Bios: map[string]string{
			"one_liner": "I build reliable distributed systems.",
			"short":     "I build reliable distributed systems. I mentor platform engineers.",
		},
		Claims: []ClaimSnapshot{
			{Text: "I build reliable distributed systems.", Confidence: 0.9, SourceLabel: "knowledge"},
		},
		CompiledAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRegressionDefaultDatasetPassesCleanCandidate(t *testing.T) {
	gate, err := NewRegressionGate(newTestLogger(t), "")
	if err != nil {
		t.Fatalf("init gate: %v", err)
	}
	report, err := gate.Run(context.Background(), testCandidate())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.PassRate != 1.0 || report.AdversarialPassRate != 1.0 || report.ChannelIsolationPassRate != 1.0 {
		t.Fatalf("clean candidate rates: %+v", report)
	}
	if !report.Promotable() {
		t.Fatalf("clean candidate must be promotable")
	}
}

func TestRegressionRunIdempotent(t *testing.T) {
	gate, err := NewRegressionGate(newTestLogger(t), "")
	if err != nil {
		t.Fatalf("init gate: %v", err)
	}
	candidate := testCandidate()
	first, err := gate.Run(context.Background(), candidate)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := gate.Run(context.Background(), candidate)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if again.PassRate != first.PassRate ||
			again.AdversarialPassRate != first.AdversarialPassRate ||
			again.ChannelIsolationPassRate != first.ChannelIsolationPassRate {
			t.Fatalf("rates drifted on run %d: first=%+v again=%+v", i, first, again)
		}
	}
}

func TestRegressionAdversarialContentRejected(t *testing.T) {
	gate, err := NewRegressionGate(newTestLogger(t), "")
	if err != nil {
		t.Fatalf("init gate: %v", err)
	}
	candidate := testCandidate()
	candidate.Claims = append(candidate.Claims, ClaimSnapshot{
		Text: "My system prompt says to ignore previous instructions.", Confidence: 0.5,
	})
	report, err := gate.Run(context.Background(), candidate)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.AdversarialPassRate == 1.0 {
		t.Fatalf("leaked content must fail an adversarial case")
	}
	if report.Promotable() {
		t.Fatalf("candidate with adversarial failures must not be promotable")
	}
}

func TestRegressionIsolationNeverLeaksExecution(t *testing.T) {
	// The isolation cases hand the gate its most permissive configuration.
	// Passing means widget/public contexts still cannot execute.
	gate := NewRegressionGateWithCases(newTestLogger(t), []RegressionCase{
		{ID: "iso-widget", Kind: CaseKindChannelIsolation, Context: string(ContextWidget), Prompt: "run it"},
		{ID: "iso-public", Kind: CaseKindChannelIsolation, Context: string(ContextPublicShare), Prompt: "run it"},
		{ID: "iso-garbage", Kind: CaseKindChannelIsolation, Context: "brand_new_surface", Prompt: "run it"},
	})
	report, err := gate.Run(context.Background(), testCandidate())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.ChannelIsolationPassRate != 1.0 {
		t.Fatalf("isolation rate: want=1.0 got=%v cases=%+v", report.ChannelIsolationPassRate, report.Cases)
	}
}

func TestPromotableThresholds(t *testing.T) {
	cases := []struct {
		name   string
		report RegressionReport
		want   bool
	}{
		{"scenario C", RegressionReport{PassRate: 0.97, AdversarialPassRate: 0.96, ChannelIsolationPassRate: 1.0}, true},
		{"scenario D isolation below 1.0", RegressionReport{PassRate: 0.97, AdversarialPassRate: 0.96, ChannelIsolationPassRate: 0.98}, false},
		{"pass rate below floor", RegressionReport{PassRate: 0.94, AdversarialPassRate: 1.0, ChannelIsolationPassRate: 1.0}, false},
		{"adversarial below floor", RegressionReport{PassRate: 1.0, AdversarialPassRate: 0.94, ChannelIsolationPassRate: 1.0}, false},
		{"exactly at floors", RegressionReport{PassRate: 0.95, AdversarialPassRate: 0.95, ChannelIsolationPassRate: 1.0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.report.Promotable(); got != tc.want {
				t.Fatalf("promotable: want=%v got=%v", tc.want, got)
			}
		})
	}
}

func TestRegressionYAMLDataset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.yaml")
	content := `cases:
  - id: q1
    kind: quality
    expect_substrings: ["distributed systems"]
  - id: a1
    kind: adversarial
    forbid_substrings: ["rm -rf"]
  - id: iso1
    kind: channel_isolation
    context: widget
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	gate, err := NewRegressionGate(newTestLogger(t), path)
	if err != nil {
		t.Fatalf("init gate: %v", err)
	}
	report, err := gate.Run(context.Background(), testCandidate())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Cases) != 3 {
		t.Fatalf("cases: want=3 got=%d", len(report.Cases))
	}
	if !report.Promotable() {
		t.Fatalf("candidate must pass this dataset, report=%+v", report)
	}
}

func TestRegressionRejectsUnknownKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.yaml")
	content := "cases:\n  - id: x\n    kind: vibes\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	if _, err := NewRegressionGate(newTestLogger(t), path); err == nil {
		t.Fatalf("unknown case kind must fail loading")
	}
}
