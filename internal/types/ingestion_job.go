package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	IngestionStatusPending     = "pending"
	IngestionStatusProcessing  = "processing"
	IngestionStatusExtracting  = "extracting_claims"
	IngestionStatusCompiling   = "compiling_persona"
	IngestionStatusCompleted   = "completed"
	IngestionStatusClaimsReady = "claims_ready"
	IngestionStatusFailed      = "failed"
)

// IngestionJobTerminal reports whether a status may never change again.
func IngestionJobTerminal(status string) bool {
	switch status {
	case IngestionStatusCompleted, IngestionStatusClaimsReady, IngestionStatusFailed:
		return true
	}
	return false
}

type IngestionJob struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TwinID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"twin_id"`
	Status           string         `gorm:"column:status;not null;index" json:"status"`
	TotalSources     int            `gorm:"column:total_sources;not null;default:0" json:"total_sources"`
	ProcessedSources int            `gorm:"column:processed_sources;not null;default:0" json:"processed_sources"`
	ExtractedClaims  int            `gorm:"column:extracted_claims;not null;default:0" json:"extracted_claims"`
	ErrorMessage     string         `gorm:"column:error_message" json:"error_message"`
	Attempts         int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastErrorAt      *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	LockedAt         *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt      *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (IngestionJob) TableName() string { return "ingestion_job" }
