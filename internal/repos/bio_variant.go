package repos

import (
	"context"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/types"
)

type BioVariantRepo interface {
	GetByTwinID(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) ([]*types.BioVariant, error)
	// ReplaceForTwin swaps the twin's full variant set in a single transaction so
	// readers never observe a partial bio set.
	ReplaceForTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, variants []*types.BioVariant) error
}

type bioVariantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBioVariantRepo(db *gorm.DB, baseLog *logger.Logger) BioVariantRepo {
	return &bioVariantRepo{db: db, log: baseLog.With("repo", "BioVariantRepo")}
}

func (r *bioVariantRepo) GetByTwinID(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) ([]*types.BioVariant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.BioVariant
	if twinID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("twin_id = ?", twinID).
		Order("bio_type ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bioVariantRepo) ReplaceForTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, variants []*types.BioVariant) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if twinID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Unscoped().
			Where("twin_id = ?", twinID).
			Delete(&types.BioVariant{}).Error; err != nil {
			return err
		}
		if len(variants) == 0 {
			return nil
		}
		return txx.Create(&variants).Error
	})
}
