package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null;index"`
	Verified     bool   `gorm:"not null;default:false"`
	Banned       bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time
}

type FileModel struct {
	ID           string `gorm:"primaryKey"`
	Filename     string `gorm:"not null"`
	OriginalName string
	MimeType     string
	ResourceKind string
	PublicID     string
	Size         int64          `gorm:"not null;default:0"`
	OwnerID      string         `gorm:"not null;index"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;index"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }
func (FileModel) TableName() string { return "files" }
