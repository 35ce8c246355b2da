package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IdentityAccount is the canonical credential record for a principal.
type IdentityAccount struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string          `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string          `gorm:"column:password_hash;not null"`
	DisplayName  string          `gorm:"column:display_name;not null"`
	Phone        *string         `gorm:"column:phone"`
	Disabled     bool            `gorm:"column:disabled;not null;default:false"`
	Claims       json.RawMessage `gorm:"type:jsonb;column:claims"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table used by the identity store.
func (IdentityAccount) TableName() string {
	return "identity_accounts"
}
