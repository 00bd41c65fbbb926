package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Twin struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	TenantID    string         `gorm:"column:tenant_id;index" json:"tenant_id"`
	DisplayName string         `gorm:"column:display_name;not null" json:"display_name"`
	// EmbedKeyHash is the bcrypt hash of the widget embed key; the plaintext is
	// only ever shown once at creation. ShareToken gates read-only share links.
	EmbedKeyHash string `gorm:"column:embed_key_hash" json:"-"`
	ShareToken   string `gorm:"column:share_token;index" json:"-"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Twin) TableName() string { return "twin" }
