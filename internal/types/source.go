package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SourceKindFile  = "file"
	SourceKindURL   = "url"
	SourceKindPaste = "paste"

	SourceLabelIdentity  = "identity"
	SourceLabelKnowledge = "knowledge"
	SourceLabelPolicies  = "policies"

	SourceFetchPending = "pending"
	SourceFetchFetched = "fetched"
	SourceFetchFailed  = "failed"
)

type Source struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TwinID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"twin_id"`
	Twin              *Twin          `gorm:"constraint:OnDelete:CASCADE;foreignKey:TwinID;references:ID" json:"twin,omitempty"`
	IngestionJobID    *uuid.UUID     `gorm:"type:uuid;index" json:"ingestion_job_id,omitempty"`
	Kind              string         `gorm:"column:kind;not null" json:"kind"`
	Label             string         `gorm:"column:label;not null;index" json:"label"`
	IdentityConfirmed bool           `gorm:"column:identity_confirmed;not null;default:false" json:"identity_confirmed"`
	ContentRef        string         `gorm:"column:content_ref;not null" json:"content_ref"`
	FetchStatus       string         `gorm:"column:fetch_status;not null;default:'pending';index" json:"fetch_status"`
	FetchAttempts     int            `gorm:"column:fetch_attempts;not null;default:0" json:"fetch_attempts"`
	LastFetchError    string         `gorm:"column:last_fetch_error" json:"last_fetch_error,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Source) TableName() string { return "twin_source" }
