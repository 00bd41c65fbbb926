package repos

import (
	"context"
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/types"
)

type LearningJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, jobs []*types.LearningJob) ([]*types.LearningJob, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.LearningJob, error)
	GetActiveByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) (*types.LearningJob, error)
	GetLatestByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) (*types.LearningJob, error)
	ListByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, limit int) ([]*types.LearningJob, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type learningJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearningJobRepo(db *gorm.DB, baseLog *logger.Logger) LearningJobRepo {
	return &learningJobRepo{db: db, log: baseLog.With("repo", "LearningJobRepo")}
}

var terminalLearningStatuses = []string{types.LearningPublished, types.LearningRejected}

func (r *learningJobRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.LearningJob) ([]*types.LearningJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.LearningJob{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *learningJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.LearningJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.LearningJob
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *learningJobRepo) GetActiveByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) (*types.LearningJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if twinID == uuid.Nil {
		return nil, nil
	}
	var job types.LearningJob
	err := transaction.WithContext(ctx).
		Where("twin_id = ? AND status NOT IN ?", twinID, terminalLearningStatuses).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *learningJobRepo) GetLatestByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) (*types.LearningJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if twinID == uuid.Nil {
		return nil, nil
	}
	var job types.LearningJob
	err := transaction.WithContext(ctx).
		Where("twin_id = ?", twinID).
		Order("triggered_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *learningJobRepo) ListByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, limit int) ([]*types.LearningJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.LearningJob
	if twinID == uuid.Nil {
		return out, nil
	}
	q := transaction.WithContext(ctx).
		Where("twin_id = ?", twinID).
		Order("triggered_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *learningJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.LearningJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}
