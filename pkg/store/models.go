package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID                     string `gorm:"primaryKey"`
	Username               string `gorm:"uniqueIndex;not null"`
	PasswordHash           string `gorm:"not null"`
	DisplayName            string
	PreferredPrimaryLang   string
	PreferredSecondaryLang string
	CreatedAt              time.Time `gorm:"not null"`
	LastSeenAt             time.Time
}

type SessionModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	TokenHash string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	RevokedAt *time.Time
	ClientIP  string
	UserAgent string
}

type ConversationModel struct {
	ID            string `gorm:"primaryKey"`
	PrimaryLang   string `gorm:"not null"`
	SecondaryLang string `gorm:"not null"`
	Mode          string `gorm:"not null;default:chat"`
	// Nullable: conversations created before accounts existed have no owner.
	UserID    *string   `gorm:"index"`
	CreatedAt time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"not null;index:idx_messages_conversation,priority:1"`
	Role           string    `gorm:"not null"`
	Lang           string    `gorm:"not null"`
	Text           string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null;index:idx_messages_conversation,priority:2"`
}

// TranslationModel keys on the (text, translated) pair. Saving a pair also
// saves the reverse pair so lookups work in either direction.
type TranslationModel struct {
	Text           string    `gorm:"primaryKey"`
	TranslatedText string    `gorm:"primaryKey"`
	CreatedAt      time.Time `gorm:"not null"`
}

type StarterModel struct {
	ID        string `gorm:"primaryKey"`
	Title     string `gorm:"not null"`
	Opener    string `gorm:"type:text;not null"`
	SourceURL string
	Subreddit string
	Rank      int            `gorm:"not null"`
	Metadata  datatypes.JSON `gorm:"type:jsonb"`
	Generator string         `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

type RefreshLogModel struct {
	ClientIP      string    `gorm:"primaryKey"`
	LastRefreshAt time.Time `gorm:"not null"`
}

type SettingModel struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type SchemaVersionModel struct {
	Version   int       `gorm:"primaryKey"`
	AppliedAt time.Time `gorm:"not null"`
}
