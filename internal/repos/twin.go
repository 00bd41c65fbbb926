package repos

import (
	"context"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/types"
)

type TwinRepo interface {
	Create(ctx context.Context, tx *gorm.DB, twins []*types.Twin) ([]*types.Twin, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Twin, error)
	// LockByID loads the twin under FOR UPDATE. Callers serialize per-twin
	// job creation on this row lock; the lock lives until tx commits.
	LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Twin, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Twin, error)
	GetByShareToken(ctx context.Context, tx *gorm.DB, token string) (*types.Twin, error)
}

type twinRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTwinRepo(db *gorm.DB, baseLog *logger.Logger) TwinRepo {
	return &twinRepo{db: db, log: baseLog.With("repo", "TwinRepo")}
}

func (r *twinRepo) Create(ctx context.Context, tx *gorm.DB, twins []*types.Twin) ([]*types.Twin, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(twins) == 0 {
		return []*types.Twin{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&twins).Error; err != nil {
		return nil, err
	}
	return twins, nil
}

func (r *twinRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Twin, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var twin types.Twin
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&twin).Error
	if err != nil {
		return nil, err
	}
	if twin.ID == uuid.Nil {
		return nil, nil
	}
	return &twin, nil
}

func (r *twinRepo) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Twin, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var twin types.Twin
	err := transaction.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&twin).Error
	if err != nil {
		return nil, err
	}
	if twin.ID == uuid.Nil {
		return nil, nil
	}
	return &twin, nil
}

func (r *twinRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Twin, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Twin
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *twinRepo) GetByShareToken(ctx context.Context, tx *gorm.DB, token string) (*types.Twin, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if token == "" {
		return nil, nil
	}
	var twin types.Twin
	err := transaction.WithContext(ctx).
		Where("share_token = ?", token).
		Limit(1).
		Find(&twin).Error
	if err != nil {
		return nil, err
	}
	if twin.ID == uuid.Nil {
		return nil, nil
	}
	return &twin, nil
}
