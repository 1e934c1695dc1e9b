package domain

import "time"

type ConversationMode string

const (
	ModeChat  ConversationMode = "chat"
	ModeTutor ConversationMode = "tutor"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type StarterGenerator string

const (
	GeneratorLLM      StarterGenerator = "llm"
	GeneratorFallback StarterGenerator = "fallback"
)

type User struct {
	ID                     string    `json:"id"`
	Username               string    `json:"username"`
	PasswordHash           string    `json:"-"`
	DisplayName            string    `json:"display_name"`
	PreferredPrimaryLang   string    `json:"preferred_primary_lang,omitempty"`
	PreferredSecondaryLang string    `json:"preferred_secondary_lang,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	LastSeenAt             time.Time `json:"last_seen_at"`
}

// Session carries only the hash of the client token; the raw token is
// never persisted.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	ClientIP  string     `json:"-"`
	UserAgent string     `json:"-"`
}

// Valid reports whether the session is usable at the given instant.
func (s Session) Valid(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

type Conversation struct {
	ID            string           `json:"id"`
	PrimaryLang   string           `json:"primary_lang"`
	SecondaryLang string           `json:"secondary_lang"`
	Mode          ConversationMode `json:"mode"`
	UserID        string           `json:"user_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

type Message struct {
	ID             int64       `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Lang           string      `json:"lang"`
	Text           string      `json:"text"`
	CreatedAt      time.Time   `json:"created_at"`
}

type Starter struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Opener    string            `json:"opener"`
	SourceURL string            `json:"source_url,omitempty"`
	Subreddit string            `json:"subreddit,omitempty"`
	Rank      int               `json:"rank"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Generator StarterGenerator  `json:"generator"`
	CreatedAt time.Time         `json:"created_at"`
}

// Post is a trending item fetched from the content feed.
type Post struct {
	Title       string  `json:"title"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	URL         string  `json:"url"`
	CreatedUTC  float64 `json:"created_utc"`
	NumComments int     `json:"num_comments"`
	SelfText    string  `json:"selftext"`
	Domain      string  `json:"domain"`
	IsSelf      bool    `json:"is_self"`
}
