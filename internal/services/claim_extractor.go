package services

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/types"
)

// ClaimExtractor turns fetched source text into scored claims. Scoring is a
// pure function of the source and its text: identical input reproduces
// identical confidences, which keeps owner review stable across reruns. A
// generative extractor would have to document its variance before replacing
// this one.
type ClaimExtractor interface {
	Extract(ctx context.Context, source *types.Source, text string) ([]*types.Claim, error)
}

type claimExtractor struct {
	log *logger.Logger
}

func NewClaimExtractor(baseLog *logger.Logger) ClaimExtractor {
	return &claimExtractor{log: baseLog.With("service", "ClaimExtractor")}
}

const (
	minClaimLength = 20
	maxClaimLength = 500
)

func (e *claimExtractor) Extract(_ context.Context, source *types.Source, text string) ([]*types.Claim, error) {
	if source == nil {
		return nil, &ExtractionError{Reason: "missing source"}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ExtractionError{SourceID: source.ID, Reason: "empty content"}
	}

	sentences := splitSentences(text)
	claims := make([]*types.Claim, 0, len(sentences))
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if len(s) < minClaimLength || len(s) > maxClaimLength {
			continue
		}
		claims = append(claims, &types.Claim{
			ID:                 uuid.New(),
			TwinID:             source.TwinID,
			SourceID:           source.ID,
			Text:               s,
			Confidence:         scoreClaim(s, source.Label),
			VerificationStatus: types.ClaimPending,
		})
	}
	if len(claims) == 0 {
		return nil, &ExtractionError{SourceID: source.ID, Reason: "no claim-sized statements found"}
	}
	return claims, nil
}

func splitSentences(text string) []string {
	out := []string{}
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '.', '!', '?', '\n':
			if b.Len() > 0 {
				out = append(out, b.String())
				b.Reset()
			}
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// scoreClaim assigns a confidence in [0,1]. First-person statements and
// identity/policy labels score higher; hedged language scores lower.
func scoreClaim(sentence string, label string) float64 {
	lower := strings.ToLower(sentence)
	score := 0.5

	for _, lead := range []string{"i ", "i'm ", "i am ", "my ", "we ", "our "} {
		if strings.HasPrefix(lower, lead) || strings.Contains(lower, " "+lead) {
			score += 0.2
			break
		}
	}

	switch label {
	case types.SourceLabelIdentity:
		score += 0.1
	case types.SourceLabelPolicies:
		score += 0.05
	}

	if strings.ContainsFunc(sentence, unicode.IsDigit) {
		score += 0.05
	}

	for _, hedge := range []string{"maybe", "probably", "i think", "i guess", "not sure", "might "} {
		if strings.Contains(lower, hedge) {
			score -= 0.25
			break
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}
