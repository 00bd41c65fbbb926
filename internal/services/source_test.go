package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/twinforge/twinforge-backend/internal/types"
)

func TestRegisterValidatesKindAndLabel(t *testing.T) {
	repo := newFakeSourceRepo()
	svc := NewSourceService(nil, newTestLogger(t), repo)
	twinID := uuid.New()

	cases := []struct {
		name  string
		input SourceInput
	}{
		{"bad kind", SourceInput{Kind: "carrier_pigeon", Label: types.SourceLabelKnowledge, ContentRef: "x"}},
		{"bad label", SourceInput{Kind: types.SourceKindPaste, Label: "vibes", ContentRef: "x"}},
		{"missing content", SourceInput{Kind: types.SourceKindPaste, Label: types.SourceLabelKnowledge}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), nil, twinID, nil, []SourceInput{tc.input}); err == nil {
				t.Fatalf("invalid input accepted: %+v", tc.input)
			}
		})
	}
	if len(repo.sources) != 0 {
		t.Fatalf("nothing may be stored on validation failure")
	}
}

func TestRegisterNormalizesAndStores(t *testing.T) {
	repo := newFakeSourceRepo()
	svc := NewSourceService(nil, newTestLogger(t), repo)
	twinID := uuid.New()
	jobID := uuid.New()

	sources, err := svc.Register(context.Background(), nil, twinID, &jobID, []SourceInput{
		{Kind: "Paste", Label: "IDENTITY", ContentRef: "I am Ada.", IdentityConfirmed: true},
		{Kind: types.SourceKindFile, Label: types.SourceLabelPolicies, ContentRef: "ref://f1", IdentityConfirmed: true},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("sources: want=2 got=%d", len(sources))
	}
	if sources[0].Kind != types.SourceKindPaste || sources[0].Label != types.SourceLabelIdentity {
		t.Fatalf("kind/label not normalized: %+v", sources[0])
	}
	if !sources[0].IdentityConfirmed {
		t.Fatalf("identity confirmation lost for identity source")
	}
	// Confirmation is meaningless on non-identity sources.
	if sources[1].IdentityConfirmed {
		t.Fatalf("non-identity source must not be identity-confirmed")
	}
	if sources[0].IngestionJobID == nil || *sources[0].IngestionJobID != jobID {
		t.Fatalf("job linkage missing: %+v", sources[0].IngestionJobID)
	}
	if sources[0].FetchStatus != types.SourceFetchPending {
		t.Fatalf("fetch status: want=%s got=%s", types.SourceFetchPending, sources[0].FetchStatus)
	}
}
