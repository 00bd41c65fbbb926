package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PersonaPublishedByIngestion = "ingestion"
	PersonaPublishedByLearning  = "learning"
)

// PersonaVersion is the published persona history for a twin. At most one row
// per twin has Active=true; publishing swaps the flag in one transaction so a
// reader never sees zero or two active versions.
type PersonaVersion struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TwinID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"twin_id"`
	Spec        datatypes.JSON `gorm:"type:jsonb;column:spec" json:"spec"`
	Active      bool           `gorm:"column:active;not null;default:false;index" json:"active"`
	PublishedBy string         `gorm:"column:published_by;not null" json:"published_by"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (PersonaVersion) TableName() string { return "persona_version" }
