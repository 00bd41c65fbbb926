package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ClaimPending  = "pending"
	ClaimApproved = "approved"
	ClaimRejected = "rejected"
)

type Claim struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TwinID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"twin_id"`
	SourceID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"source_id"`
	Source             *Source        `gorm:"constraint:OnDelete:CASCADE;foreignKey:SourceID;references:ID" json:"source,omitempty"`
	Text               string         `gorm:"column:text;not null" json:"text"`
	Confidence         float64        `gorm:"column:confidence;not null" json:"confidence"`
	VerificationStatus string         `gorm:"column:verification_status;not null;default:'pending';index" json:"verification_status"`
	ReviewedAt         *time.Time     `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	ReviewCount        int            `gorm:"column:review_count;not null;default:0" json:"review_count"`
	CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Claim) TableName() string { return "twin_claim" }
