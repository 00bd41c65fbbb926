package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/twinforge/twinforge-backend/internal/config"
	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/repos"
	"github.com/twinforge/twinforge-backend/internal/types"
)

// PersonaSpec is the aggregate persona snapshot produced by a compile. It is
// what gets published as a persona version and what the regression gate
// evaluates as a learning candidate.
type PersonaSpec struct {
	TwinID          uuid.UUID         `json:"twin_id"`
	Bios            map[string]string `json:"bios"`
	Claims          []ClaimSnapshot   `json:"claims"`
	FeedbackTallies map[string]int    `json:"feedback_tallies,omitempty"`
	CompiledAt      time.Time         `json:"compiled_at"`
}

type ClaimSnapshot struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	SourceLabel string  `json:"source_label"`
}

type PersonaCompiler interface {
	// Compile regenerates the twin's full bio set from eligible claims and
	// replaces the stored variants atomically. Returns the variants and the
	// aggregate spec. A twin with no eligible claims yields (nil, nil, nil) so
	// the orchestrator can land on claims_ready instead of completed.
	Compile(ctx context.Context, twinID uuid.UUID) ([]*types.BioVariant, *PersonaSpec, error)
	// EligibleClaims exposes the compile read-path: approved claims (plus
	// high-confidence pending ones only when explicitly configured) from
	// sources that satisfy the identity-confirmation invariant.
	EligibleClaims(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) ([]*types.Claim, map[uuid.UUID]*types.Source, error)
}

type personaCompiler struct {
	db   *gorm.DB
	log  *logger.Logger
	cfg  config.IngestionConfig
	twins  repos.TwinRepo
	claims repos.ClaimRepo
	sources repos.SourceRepo
	bios   repos.BioVariantRepo

	// compileLocks serializes compilation per twin. Two concurrently finishing
	// jobs must not interleave writes to the same bio set.
	compileLocks sync.Map
}

func NewPersonaCompiler(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg config.IngestionConfig,
	twinRepo repos.TwinRepo,
	claimRepo repos.ClaimRepo,
	sourceRepo repos.SourceRepo,
	bioRepo repos.BioVariantRepo,
) PersonaCompiler {
	return &personaCompiler{
		db:      db,
		log:     baseLog.With("service", "PersonaCompiler"),
		cfg:     cfg,
		twins:   twinRepo,
		claims:  claimRepo,
		sources: sourceRepo,
		bios:    bioRepo,
	}
}

var bioLengthBounds = map[string]int{
	types.BioTypeOneLiner:      160,
	types.BioTypeShort:         400,
	types.BioTypeLinkedInAbout: 2000,
	types.BioTypeSpeakerIntro:  600,
	types.BioTypeFull:          4000,
}

func (c *personaCompiler) lockTwin(twinID uuid.UUID) *sync.Mutex {
	v, _ := c.compileLocks.LoadOrStore(twinID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (c *personaCompiler) EligibleClaims(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) ([]*types.Claim, map[uuid.UUID]*types.Source, error) {
	sources, err := c.sources.GetByTwinID(ctx, tx, twinID)
	if err != nil {
		return nil, nil, fmt.Errorf("load sources: %w", err)
	}
	sourceByID := make(map[uuid.UUID]*types.Source, len(sources))
	for _, s := range sources {
		if s != nil {
			sourceByID[s.ID] = s
		}
	}

	approved, err := c.claims.GetByTwinAndStatus(ctx, tx, twinID, types.ClaimApproved)
	if err != nil {
		return nil, nil, fmt.Errorf("load approved claims: %w", err)
	}
	eligible := make([]*types.Claim, 0, len(approved))
	eligible = append(eligible, approved...)

	if c.cfg.IncludePendingInCompile {
		pending, err := c.claims.GetByTwinAndStatus(ctx, tx, twinID, types.ClaimPending)
		if err != nil {
			return nil, nil, fmt.Errorf("load pending claims: %w", err)
		}
		for _, cl := range pending {
			if cl != nil && cl.Confidence >= c.cfg.PendingCompileMinConfidence {
				eligible = append(eligible, cl)
			}
		}
	}

	// Identity sources must be explicitly confirmed before their claims may
	// shape the bio set.
	filtered := make([]*types.Claim, 0, len(eligible))
	for _, cl := range eligible {
		if cl == nil {
			continue
		}
		src := sourceByID[cl.SourceID]
		if src == nil {
			continue
		}
		if src.Label == types.SourceLabelIdentity && !src.IdentityConfirmed {
			continue
		}
		filtered = append(filtered, cl)
	}
	return filtered, sourceByID, nil
}

func (c *personaCompiler) Compile(ctx context.Context, twinID uuid.UUID) ([]*types.BioVariant, *PersonaSpec, error) {
	if twinID == uuid.Nil {
		return nil, nil, &CompilationError{TwinID: twinID, Err: fmt.Errorf("missing twin id")}
	}
	mu := c.lockTwin(twinID)
	mu.Lock()
	defer mu.Unlock()

	claims, sourceByID, err := c.EligibleClaims(ctx, nil, twinID)
	if err != nil {
		return nil, nil, &CompilationError{TwinID: twinID, Err: err}
	}
	if len(claims) == 0 {
		return nil, nil, nil
	}

	displayName := ""
	twins, err := c.twins.GetByIDs(ctx, nil, []uuid.UUID{twinID})
	if err != nil {
		return nil, nil, &CompilationError{TwinID: twinID, Err: fmt.Errorf("load twin: %w", err)}
	}
	if len(twins) > 0 && twins[0] != nil {
		displayName = twins[0].DisplayName
	}

	// Highest-confidence claims first; ties broken by text so reruns are stable.
	ordered := make([]*types.Claim, len(claims))
	copy(ordered, claims)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Confidence != ordered[j].Confidence {
			return ordered[i].Confidence > ordered[j].Confidence
		}
		return ordered[i].Text < ordered[j].Text
	})

	variants := make([]*types.BioVariant, 0, len(types.AllBioTypes))
	bioTexts := make(map[string]string, len(types.AllBioTypes))
	for _, bioType := range types.AllBioTypes {
		text := generateBio(bioType, displayName, ordered)
		status := types.BioValid
		if strings.TrimSpace(text) == "" || len(text) > bioLengthBounds[bioType] {
			status = types.BioInvalid
		}
		variants = append(variants, &types.BioVariant{
			ID:               uuid.New(),
			TwinID:           twinID,
			BioType:          bioType,
			BioText:          text,
			ValidationStatus: status,
		})
		bioTexts[bioType] = text
	}

	if err := c.bios.ReplaceForTwin(ctx, nil, twinID, variants); err != nil {
		return nil, nil, &CompilationError{TwinID: twinID, Err: fmt.Errorf("replace bio set: %w", err)}
	}

	spec := &PersonaSpec{
		TwinID:     twinID,
		Bios:       bioTexts,
		Claims:     make([]ClaimSnapshot, 0, len(ordered)),
		CompiledAt: time.Now().UTC(),
	}
	for _, cl := range ordered {
		label := ""
		if src := sourceByID[cl.SourceID]; src != nil {
			label = src.Label
		}
		spec.Claims = append(spec.Claims, ClaimSnapshot{
			Text:        cl.Text,
			Confidence:  cl.Confidence,
			SourceLabel: label,
		})
	}

	c.log.Info("Compiled persona",
		"twin_id", twinID,
		"claims", len(ordered),
		"variants", len(variants),
	)
	return variants, spec, nil
}

func (s *PersonaSpec) ToJSON() (datatypes.JSON, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func generateBio(bioType string, displayName string, ordered []*types.Claim) string {
	texts := make([]string, 0, len(ordered))
	for _, cl := range ordered {
		texts = append(texts, strings.TrimSpace(cl.Text))
	}
	switch bioType {
	case types.BioTypeOneLiner:
		return truncateAtWord(texts[0], bioLengthBounds[types.BioTypeOneLiner])
	case types.BioTypeShort:
		return truncateAtWord(joinSentences(topN(texts, 3)), bioLengthBounds[types.BioTypeShort])
	case types.BioTypeLinkedInAbout:
		return truncateAtWord(joinSentences(topN(texts, 12)), bioLengthBounds[types.BioTypeLinkedInAbout])
	case types.BioTypeSpeakerIntro:
		intro := joinSentences(topN(texts, 4))
		if displayName != "" {
			intro = fmt.Sprintf("Please welcome %s. %s", displayName, intro)
		}
		return truncateAtWord(intro, bioLengthBounds[types.BioTypeSpeakerIntro])
	case types.BioTypeFull:
		return truncateAtWord(joinSentences(texts), bioLengthBounds[types.BioTypeFull])
	}
	return ""
}

func topN(texts []string, n int) []string {
	if len(texts) < n {
		return texts
	}
	return texts[:n]
}

func joinSentences(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasSuffix(t, ".") {
			t += "."
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}

func truncateAtWord(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
