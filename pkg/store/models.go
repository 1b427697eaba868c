package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Email     string    `gorm:"uniqueIndex;not null"`
	Role      string    `gorm:"size:16;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

type ClassroomModel struct {
	ID        string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

type WorkspaceModel struct {
	ID          string `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Description string
	ActiveAI    string `gorm:"size:32;not null"`
	PDFURL      string `gorm:"not null"`
	StorageKey  string
	Notes       *string   `gorm:"type:text"`
	CreatorID   string    `gorm:"not null;index"`
	ClassroomID *string   `gorm:"index"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type WorkspaceMemberModel struct {
	WorkspaceID string `gorm:"primaryKey"`
	UserID      string `gorm:"primaryKey;index"`
}

type ContextModel struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string `gorm:"uniqueIndex;not null"`
	AIModel     string `gorm:"size:32;not null"`
	// Reserved for a retrieval index; never populated.
	VectorIndex datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null"`
}

type MessageModel struct {
	ID        string    `gorm:"primaryKey"`
	Seq       int64     `gorm:"autoIncrement;not null;index"`
	ContextID string    `gorm:"not null;index"`
	Role      string    `gorm:"size:16;not null;index"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
