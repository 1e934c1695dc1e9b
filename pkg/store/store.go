package store

import (
	"time"

	"linguatutor/pkg/domain"
)

// Settings keys.
const (
	SettingBetaInviteHash = "beta_invite_code_hash"
)

// Store defines persistence operations for users, sessions, conversations,
// the translation cache, conversation starters, and settings.
type Store interface {
	// users
	CreateUser(domain.User) error
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	UpdateUserProfile(id string, displayName, primaryLang, secondaryLang *string) error
	TouchLastSeen(id string, at time.Time) error

	// sessions
	CreateSession(domain.Session) error
	GetSessionByTokenHash(hash string) (domain.Session, bool, error)
	ExtendSession(id string, expiresAt time.Time) error
	RevokeSession(id string, at time.Time) error

	// conversations
	CreateConversation(domain.Conversation) error
	GetConversation(id string) (domain.Conversation, bool, error)
	AppendMessage(domain.Message) (int64, error)
	// ListMessages returns messages in chronological order; a positive
	// limit keeps only the most recent ones.
	ListMessages(conversationID string, limit int) ([]domain.Message, error)

	// translation cache
	GetTranslation(text string) (string, bool, error)
	SaveTranslation(text, translated string) error

	// conversation starters
	ReplaceStarters([]domain.Starter) error
	ListStarters() ([]domain.Starter, error)
	GetStarter(id string) (domain.Starter, bool, error)

	// starter refresh cooldown log
	LastRefresh(clientIP string) (time.Time, bool, error)
	SetLastRefresh(clientIP string, at time.Time) error

	// settings
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
}
