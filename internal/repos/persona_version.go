package repos

import (
	"context"
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/types"
)

type PersonaVersionRepo interface {
	GetActiveByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) (*types.PersonaVersion, error)
	// Publish deactivates the current active version and inserts the new one as
	// active in a single transaction.
	Publish(ctx context.Context, tx *gorm.DB, version *types.PersonaVersion) (*types.PersonaVersion, error)
}

type personaVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPersonaVersionRepo(db *gorm.DB, baseLog *logger.Logger) PersonaVersionRepo {
	return &personaVersionRepo{db: db, log: baseLog.With("repo", "PersonaVersionRepo")}
}

func (r *personaVersionRepo) GetActiveByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) (*types.PersonaVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if twinID == uuid.Nil {
		return nil, nil
	}
	var v types.PersonaVersion
	err := transaction.WithContext(ctx).
		Where("twin_id = ? AND active = ?", twinID, true).
		Limit(1).
		Find(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		return nil, nil
	}
	return &v, nil
}

func (r *personaVersionRepo) Publish(ctx context.Context, tx *gorm.DB, version *types.PersonaVersion) (*types.PersonaVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if version == nil || version.TwinID == uuid.Nil {
		return nil, nil
	}
	now := time.Now()
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Model(&types.PersonaVersion{}).
			Where("twin_id = ? AND active = ?", version.TwinID, true).
			Updates(map[string]interface{}{
				"active":     false,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		version.Active = true
		return txx.Create(version).Error
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}
