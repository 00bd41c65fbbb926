package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/repos"
	"github.com/twinforge/twinforge-backend/internal/types"
)

var feedbackSignalRe = regexp.MustCompile(`^[a-z0-9_\.]{3,64}$`)

const maxFeedbackBatch = 100

type FeedbackInput struct {
	TurnRef    string         `json:"turn_ref"`
	Signal     string         `json:"signal"`
	OccurredAt *time.Time     `json:"occurred_at,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// FeedbackService appends owner feedback against conversation turns. Events
// are immutable once written; the learning scheduler only ever reads them.
type FeedbackService interface {
	Ingest(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, inputs []FeedbackInput) (int, error)
}

type feedbackService struct {
	db     *gorm.DB
	log    *logger.Logger
	events repos.FeedbackEventRepo
}

func NewFeedbackService(db *gorm.DB, baseLog *logger.Logger, events repos.FeedbackEventRepo) FeedbackService {
	return &feedbackService{
		db:     db,
		log:    baseLog.With("service", "FeedbackService"),
		events: events,
	}
}

func (s *feedbackService) Ingest(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, inputs []FeedbackInput) (int, error) {
	if twinID == uuid.Nil {
		return 0, fmt.Errorf("missing twin id")
	}
	if len(inputs) == 0 {
		return 0, nil
	}
	if len(inputs) > maxFeedbackBatch {
		return 0, fmt.Errorf("batch too large: %d > %d", len(inputs), maxFeedbackBatch)
	}
	rows := make([]*types.FeedbackEvent, 0, len(inputs))
	for i, in := range inputs {
		if !feedbackSignalRe.MatchString(in.Signal) {
			return 0, fmt.Errorf("invalid signal %q at index %d", in.Signal, i)
		}
		if in.TurnRef == "" {
			return 0, fmt.Errorf("missing turn_ref at index %d", i)
		}
		var data datatypes.JSON
		if len(in.Data) > 0 {
			raw, err := json.Marshal(in.Data)
			if err != nil {
				return 0, fmt.Errorf("encode data at index %d: %w", i, err)
			}
			data = datatypes.JSON(raw)
		}
		row := &types.FeedbackEvent{
			ID:      uuid.New(),
			TwinID:  twinID,
			TurnRef: in.TurnRef,
			Signal:  in.Signal,
			Data:    data,
		}
		if in.OccurredAt != nil {
			row.CreatedAt = *in.OccurredAt
		}
		rows = append(rows, row)
	}
	created, err := s.events.Create(ctx, tx, rows)
	if err != nil {
		return 0, err
	}
	s.log.Info("feedback ingested", "twin_id", twinID, "count", len(created))
	return len(created), nil
}
