package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/repos"
	"github.com/twinforge/twinforge-backend/internal/types"
)

const (
	ReviewActionApprove = "approve"
	ReviewActionReject  = "reject"
	ReviewActionReopen  = "reopen"
)

// ClaimService is the owner review surface over extracted claims. Reviews are
// the only writes to a claim after extraction.
type ClaimService interface {
	List(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, minConfidence float64) ([]*types.Claim, error)
	Review(ctx context.Context, tx *gorm.DB, claimID uuid.UUID, action string) (*types.Claim, error)
}

type claimService struct {
	db     *gorm.DB
	log    *logger.Logger
	claims repos.ClaimRepo
}

func NewClaimService(db *gorm.DB, baseLog *logger.Logger, claims repos.ClaimRepo) ClaimService {
	return &claimService{
		db:     db,
		log:    baseLog.With("service", "ClaimService"),
		claims: claims,
	}
}

func (s *claimService) List(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, minConfidence float64) ([]*types.Claim, error) {
	if twinID == uuid.Nil {
		return nil, fmt.Errorf("missing twin id")
	}
	return s.claims.GetByTwinID(ctx, tx, twinID, minConfidence)
}

func (s *claimService) Review(ctx context.Context, tx *gorm.DB, claimID uuid.UUID, action string) (*types.Claim, error) {
	if claimID == uuid.Nil {
		return nil, fmt.Errorf("missing claim id")
	}
	claim, err := s.claims.GetByID(ctx, tx, claimID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, fmt.Errorf("claim %s not found", claimID)
	}
	var from, to string
	switch action {
	case ReviewActionApprove:
		from, to = types.ClaimPending, types.ClaimApproved
	case ReviewActionReject:
		from, to = types.ClaimPending, types.ClaimRejected
	case ReviewActionReopen:
		// Either terminal status may be reopened; the repo verifies the claim
		// really is in the expected state.
		if claim.VerificationStatus != types.ClaimApproved && claim.VerificationStatus != types.ClaimRejected {
			return nil, fmt.Errorf("claim %s is not reviewed yet", claimID)
		}
		from, to = claim.VerificationStatus, types.ClaimPending
	default:
		return nil, fmt.Errorf("unknown review action %q", action)
	}
	if err := s.claims.SetVerificationStatus(ctx, tx, claimID, from, to); err != nil {
		return nil, err
	}
	s.log.Info("claim reviewed", "claim_id", claimID, "action", action, "from", from, "to", to)
	return s.claims.GetByID(ctx, tx, claimID)
}
