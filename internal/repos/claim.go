package repos

import (
	"context"
	"fmt"
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/types"
)

type ClaimRepo interface {
	Create(ctx context.Context, tx *gorm.DB, claims []*types.Claim) ([]*types.Claim, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Claim, error)
	// GetByTwinID returns claims at or above minConfidence, newest sources first.
	GetByTwinID(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, minConfidence float64) ([]*types.Claim, error)
	GetByTwinAndStatus(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, status string) ([]*types.Claim, error)
	// SetVerificationStatus enforces the review transitions: pending may move to
	// approved or rejected, and a terminal claim may only move back to pending
	// through an explicit reopen (which bumps review_count as the audit trail).
	SetVerificationStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from string, to string) error
	CountByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) (int64, error)
}

type claimRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClaimRepo(db *gorm.DB, baseLog *logger.Logger) ClaimRepo {
	return &claimRepo{db: db, log: baseLog.With("repo", "ClaimRepo")}
}

func (r *claimRepo) Create(ctx context.Context, tx *gorm.DB, claims []*types.Claim) ([]*types.Claim, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(claims) == 0 {
		return []*types.Claim{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&claims).Error; err != nil {
		return nil, err
	}
	return claims, nil
}

func (r *claimRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Claim, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var claim types.Claim
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&claim).Error
	if err != nil {
		return nil, err
	}
	if claim.ID == uuid.Nil {
		return nil, nil
	}
	return &claim, nil
}

func (r *claimRepo) GetByTwinID(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, minConfidence float64) ([]*types.Claim, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Claim
	if twinID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("twin_id = ? AND confidence >= ?", twinID, minConfidence).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *claimRepo) GetByTwinAndStatus(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, status string) ([]*types.Claim, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Claim
	if twinID == uuid.Nil || status == "" {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("twin_id = ? AND verification_status = ?", twinID, status).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *claimRepo) SetVerificationStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from string, to string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("missing claim id")
	}
	now := time.Now()
	updates := map[string]interface{}{
		"verification_status": to,
		"reviewed_at":         now,
		"updated_at":          now,
	}
	if to == types.ClaimPending {
		// Reopen: count it so re-reviews are auditable.
		updates["review_count"] = gorm.Expr("review_count + 1")
	}
	res := transaction.WithContext(ctx).
		Model(&types.Claim{}).
		Where("id = ? AND verification_status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("claim %s is not in status %q", id, from)
	}
	return nil
}

func (r *claimRepo) CountByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if twinID == uuid.Nil {
		return 0, nil
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.Claim{}).
		Where("twin_id = ?", twinID).
		Count(&n).Error
	return n, err
}
