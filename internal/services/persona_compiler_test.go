package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/twinforge/twinforge-backend/internal/config"
	"github.com/twinforge/twinforge-backend/internal/types"
)

type compilerFixture struct {
	twins    *fakeTwinRepo
	claims   *fakeClaimRepo
	sources  *fakeSourceRepo
	bios     *fakeBioVariantRepo
	compiler PersonaCompiler
	twinID   uuid.UUID
}

func newCompilerFixture(t *testing.T, cfg config.IngestionConfig) *compilerFixture {
	t.Helper()
	log := newTestLogger(t)
	f := &compilerFixture{
		twins:   newFakeTwinRepo(),
		claims:  newFakeClaimRepo(),
		sources: newFakeSourceRepo(),
		bios:    newFakeBioVariantRepo(),
		twinID:  uuid.New(),
	}
	f.twins.twins[f.twinID] = &types.Twin{ID: f.twinID, DisplayName: "Ada Example"}
	f.compiler = NewPersonaCompiler(nil, log, cfg, f.twins, f.claims, f.sources, f.bios)
	return f
}

func (f *compilerFixture) addSource(label string, identityConfirmed bool) *types.Source {
	src := &types.Source{
		ID:                uuid.New(),
		TwinID:            f.twinID,
		Kind:              types.SourceKindPaste,
		Label:             label,
		IdentityConfirmed: identityConfirmed,
	}
	f.sources.sources[src.ID] = src
	return src
}

func (f *compilerFixture) addClaim(src *types.Source, text string, confidence float64, status string) *types.Claim {
	claim := &types.Claim{
		ID:                 uuid.New(),
		TwinID:             f.twinID,
		SourceID:           src.ID,
		Text:               text,
		Confidence:         confidence,
		VerificationStatus: status,
	}
	f.claims.claims[claim.ID] = claim
	return claim
}

func TestCompileNoEligibleClaimsReturnsNil(t *testing.T) {
	f := newCompilerFixture(t, config.IngestionConfig{})
	src := f.addSource(types.SourceLabelKnowledge, false)
	f.addClaim(src, "I build distributed systems for a living.", 0.9, types.ClaimPending)

	variants, spec, err := f.compiler.Compile(context.Background(), f.twinID)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if variants != nil || spec != nil {
		t.Fatalf("pending-only twin must not compile: variants=%v spec=%v", variants, spec)
	}
	if f.bios.replaces != 0 {
		t.Fatalf("bio set must not be touched, replaces=%d", f.bios.replaces)
	}
}

func TestCompileGeneratesAllBioTypes(t *testing.T) {
	f := newCompilerFixture(t, config.IngestionConfig{})
	src := f.addSource(types.SourceLabelKnowledge, false)
	f.addClaim(src, "I build distributed systems for a living.", 0.9, types.ClaimApproved)
	f.addClaim(src, "I speak at conferences about reliability engineering.", 0.7, types.ClaimApproved)

	variants, spec, err := f.compiler.Compile(context.Background(), f.twinID)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(variants) != len(types.AllBioTypes) {
		t.Fatalf("variants: want=%d got=%d", len(types.AllBioTypes), len(variants))
	}
	seen := map[string]bool{}
	for _, v := range variants {
		seen[v.BioType] = true
		if v.ValidationStatus != types.BioValid {
			t.Fatalf("%s invalid: %q", v.BioType, v.BioText)
		}
		if len(v.BioText) > bioLengthBounds[v.BioType] {
			t.Fatalf("%s over bound: len=%d max=%d", v.BioType, len(v.BioText), bioLengthBounds[v.BioType])
		}
	}
	for _, bioType := range types.AllBioTypes {
		if !seen[bioType] {
			t.Fatalf("missing bio type %s", bioType)
		}
	}
	if spec == nil || len(spec.Claims) != 2 {
		t.Fatalf("spec claims: want=2 got=%+v", spec)
	}
	if f.bios.replaces != 1 {
		t.Fatalf("atomic replace calls: want=1 got=%d", f.bios.replaces)
	}
	// Highest confidence first in the snapshot.
	if spec.Claims[0].Confidence < spec.Claims[1].Confidence {
		t.Fatalf("claims not ordered by confidence: %+v", spec.Claims)
	}
}

func TestCompileExcludesUnconfirmedIdentitySources(t *testing.T) {
	f := newCompilerFixture(t, config.IngestionConfig{})
	unconfirmed := f.addSource(types.SourceLabelIdentity, false)
	confirmed := f.addSource(types.SourceLabelIdentity, true)
	f.addClaim(unconfirmed, "I am secretly someone else entirely you know.", 0.95, types.ClaimApproved)
	f.addClaim(confirmed, "I have led platform teams for about a decade.", 0.8, types.ClaimApproved)

	_, spec, err := f.compiler.Compile(context.Background(), f.twinID)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(spec.Claims) != 1 {
		t.Fatalf("claims: want=1 got=%d", len(spec.Claims))
	}
	if spec.Claims[0].Text != "I have led platform teams for about a decade." {
		t.Fatalf("wrong claim survived: %q", spec.Claims[0].Text)
	}
}

func TestCompilePendingInclusionIsOptIn(t *testing.T) {
	cfg := config.IngestionConfig{
		IncludePendingInCompile:     true,
		PendingCompileMinConfidence: 0.85,
	}
	f := newCompilerFixture(t, cfg)
	src := f.addSource(types.SourceLabelKnowledge, false)
	f.addClaim(src, "I maintain a widely used open source scheduler.", 0.9, types.ClaimPending)
	f.addClaim(src, "I might enjoy long walks but who really knows.", 0.4, types.ClaimPending)
	f.addClaim(src, "I run infrastructure for a mid-size fintech firm.", 0.8, types.ClaimApproved)

	_, spec, err := f.compiler.Compile(context.Background(), f.twinID)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	// Approved claim plus the single pending claim above the floor.
	if len(spec.Claims) != 2 {
		t.Fatalf("claims: want=2 got=%d", len(spec.Claims))
	}
	for _, c := range spec.Claims {
		if c.Confidence < 0.8 {
			t.Fatalf("low-confidence pending claim leaked: %+v", c)
		}
	}
}
