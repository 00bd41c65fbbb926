package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/twinforge/twinforge-backend/internal/types"
)

func testSource(label string) *types.Source {
	return &types.Source{
		ID:     uuid.New(),
		TwinID: uuid.New(),
		Kind:   types.SourceKindPaste,
		Label:  label,
	}
}

func TestExtractEmptyContentFails(t *testing.T) {
	extractor := NewClaimExtractor(newTestLogger(t))
	src := testSource(types.SourceLabelKnowledge)
	_, err := extractor.Extract(context.Background(), src, "   \n\t  ")
	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("error type: want=*ExtractionError got=%T", err)
	}
	if extractionErr.SourceID != src.ID {
		t.Fatalf("source id: want=%s got=%s", src.ID, extractionErr.SourceID)
	}
}

func TestExtractDropsShortAndOversizedSentences(t *testing.T) {
	extractor := NewClaimExtractor(newTestLogger(t))
	src := testSource(types.SourceLabelKnowledge)
	long := strings.Repeat("x", maxClaimLength+1)
	text := "Too short. I have spent twelve years building developer tools. " + long + "."
	claims, err := extractor.Extract(context.Background(), src, text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("claims: want=1 got=%d", len(claims))
	}
	if !strings.Contains(claims[0].Text, "twelve years") {
		t.Fatalf("kept wrong sentence: %q", claims[0].Text)
	}
}

func TestExtractDeterministicConfidence(t *testing.T) {
	extractor := NewClaimExtractor(newTestLogger(t))
	src := testSource(types.SourceLabelIdentity)
	text := "I am a systems engineer based in Berlin. My team maybe ships weekly releases."

	first, err := extractor.Extract(context.Background(), src, text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := extractor.Extract(context.Background(), src, text)
		if err != nil {
			t.Fatalf("extract run %d: %v", i, err)
		}
		if len(again) != len(first) {
			t.Fatalf("claim count changed: want=%d got=%d", len(first), len(again))
		}
		for j := range again {
			if again[j].Confidence != first[j].Confidence {
				t.Fatalf("confidence drifted at claim %d: want=%v got=%v", j, first[j].Confidence, again[j].Confidence)
			}
			if again[j].Text != first[j].Text {
				t.Fatalf("text drifted at claim %d: want=%q got=%q", j, first[j].Text, again[j].Text)
			}
		}
	}
}

func TestExtractScoringSignals(t *testing.T) {
	extractor := NewClaimExtractor(newTestLogger(t))
	src := testSource(types.SourceLabelIdentity)
	text := "I am the founder of a robotics company. The weather there is probably quite cold in winter months."
	claims, err := extractor.Extract(context.Background(), src, text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("claims: want=2 got=%d", len(claims))
	}
	// First-person identity statement outranks a hedged third-person one.
	if claims[0].Confidence <= claims[1].Confidence {
		t.Fatalf("confidence ordering: first=%v second=%v", claims[0].Confidence, claims[1].Confidence)
	}
	for _, c := range claims {
		if c.Confidence < 0 || c.Confidence > 1 {
			t.Fatalf("confidence out of range: %v", c.Confidence)
		}
		if c.VerificationStatus != types.ClaimPending {
			t.Fatalf("status: want=%s got=%s", types.ClaimPending, c.VerificationStatus)
		}
	}
}
