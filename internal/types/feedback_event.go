package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// FeedbackEvent rows are append-only. There is no soft delete and nothing
// updates them after creation; the learning scheduler only ever reads.
type FeedbackEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TwinID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"twin_id"`
	TurnRef   string         `gorm:"column:turn_ref;not null" json:"turn_ref"`
	Signal    string         `gorm:"column:signal;not null;index" json:"signal"`
	Data      datatypes.JSON `gorm:"type:jsonb;column:data" json:"data"`
	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (FeedbackEvent) TableName() string { return "feedback_event" }
