package repos

import (
	"context"
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/types"
)

type FeedbackEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, events []*types.FeedbackEvent) ([]*types.FeedbackEvent, error)
	CountByTwinSince(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, since time.Time) (int64, error)
	GetByTwinSince(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, since time.Time, limit int) ([]*types.FeedbackEvent, error)
	// TwinsWithEventsSince lists distinct twins that produced feedback after the
	// cutoff; the learning worker scans these.
	TwinsWithEventsSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]uuid.UUID, error)
}

type feedbackEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeedbackEventRepo(db *gorm.DB, baseLog *logger.Logger) FeedbackEventRepo {
	return &feedbackEventRepo{db: db, log: baseLog.With("repo", "FeedbackEventRepo")}
}

func (r *feedbackEventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.FeedbackEvent) ([]*types.FeedbackEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return []*types.FeedbackEvent{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *feedbackEventRepo) CountByTwinSince(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if twinID == uuid.Nil {
		return 0, nil
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.FeedbackEvent{}).
		Where("twin_id = ? AND created_at > ?", twinID, since).
		Count(&n).Error
	return n, err
}

func (r *feedbackEventRepo) GetByTwinSince(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, since time.Time, limit int) ([]*types.FeedbackEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.FeedbackEvent
	if twinID == uuid.Nil {
		return out, nil
	}
	q := transaction.WithContext(ctx).
		Where("twin_id = ? AND created_at > ?", twinID, since).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *feedbackEventRepo) TwinsWithEventsSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []uuid.UUID
	err := transaction.WithContext(ctx).
		Model(&types.FeedbackEvent{}).
		Where("created_at > ?", since).
		Distinct("twin_id").
		Pluck("twin_id", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
