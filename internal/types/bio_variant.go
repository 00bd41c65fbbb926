package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BioTypeOneLiner      = "one_liner"
	BioTypeShort         = "short"
	BioTypeLinkedInAbout = "linkedin_about"
	BioTypeSpeakerIntro  = "speaker_intro"
	BioTypeFull          = "full"

	BioValid   = "valid"
	BioInvalid = "invalid"
)

// AllBioTypes is the fixed set of variants the compiler produces, in the
// order they are generated.
var AllBioTypes = []string{BioTypeOneLiner, BioTypeShort, BioTypeLinkedInAbout, BioTypeSpeakerIntro, BioTypeFull}

type BioVariant struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TwinID           uuid.UUID      `gorm:"type:uuid;not null;index:idx_bio_twin_type,unique" json:"twin_id"`
	BioType          string         `gorm:"column:bio_type;not null;index:idx_bio_twin_type,unique" json:"bio_type"`
	BioText          string         `gorm:"column:bio_text" json:"bio_text"`
	ValidationStatus string         `gorm:"column:validation_status;not null;default:'valid'" json:"validation_status"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (BioVariant) TableName() string { return "bio_variant" }
