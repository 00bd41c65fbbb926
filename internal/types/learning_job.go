package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	LearningPending    = "pending"
	LearningEvaluating = "evaluating"
	LearningPublished  = "published"
	LearningRejected   = "rejected"
)

func LearningJobTerminal(status string) bool {
	return status == LearningPublished || status == LearningRejected
}

type LearningJob struct {
	ID                       uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TwinID                   uuid.UUID      `gorm:"type:uuid;not null;index" json:"twin_id"`
	CandidateSpec            datatypes.JSON `gorm:"type:jsonb;column:candidate_spec" json:"candidate_spec"`
	Status                   string         `gorm:"column:status;not null;index" json:"status"`
	PassRate                 float64        `gorm:"column:pass_rate;not null;default:0" json:"pass_rate"`
	AdversarialPassRate      float64        `gorm:"column:adversarial_pass_rate;not null;default:0" json:"adversarial_pass_rate"`
	ChannelIsolationPassRate float64        `gorm:"column:channel_isolation_pass_rate;not null;default:0" json:"channel_isolation_pass_rate"`
	RejectReason             string         `gorm:"column:reject_reason" json:"reject_reason,omitempty"`
	TriggeredAt              time.Time      `gorm:"column:triggered_at;not null;index" json:"triggered_at"`
	DecidedAt                *time.Time     `gorm:"column:decided_at" json:"decided_at,omitempty"`
	CreatedAt                time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt                time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt                gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LearningJob) TableName() string { return "learning_job" }
