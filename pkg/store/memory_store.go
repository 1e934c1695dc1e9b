package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"linguatutor/pkg/domain"
)

// ErrDuplicate is returned by Store implementations on unique-key
// violations (the GormStore translates driver errors onto it).
var ErrDuplicate = errors.New("duplicate key")

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User    // key: user ID
	usernames     map[string]string         // username -> user ID
	sessions      map[string]domain.Session // key: session ID
	tokenHashes   map[string]string         // token hash -> session ID
	conversations map[string]domain.Conversation
	messages      map[string][]domain.Message // conversation ID -> messages
	nextMessageID int64
	translations  map[string]string // text -> translated text
	starters      []domain.Starter
	refreshes     map[string]time.Time // client IP -> last refresh
	settings      map[string]string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		usernames:     make(map[string]string),
		sessions:      make(map[string]domain.Session),
		tokenHashes:   make(map[string]string),
		conversations: make(map[string]domain.Conversation),
		messages:      make(map[string][]domain.Message),
		translations:  make(map[string]string),
		refreshes:     make(map[string]time.Time),
		settings:      make(map[string]string),
	}
}

func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.usernames[u.Username]; exists {
		return ErrDuplicate
	}
	m.users[u.ID] = u
	m.usernames[u.Username] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernames[username]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	return user, ok, nil
}

func (m *MemoryStore) UpdateUserProfile(id string, displayName, primaryLang, secondaryLang *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil
	}
	if displayName != nil {
		user.DisplayName = *displayName
	}
	if primaryLang != nil {
		user.PreferredPrimaryLang = *primaryLang
	}
	if secondaryLang != nil {
		user.PreferredSecondaryLang = *secondaryLang
	}
	m.users[id] = user
	return nil
}

func (m *MemoryStore) TouchLastSeen(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		user.LastSeenAt = at
		m.users[id] = user
	}
	return nil
}

func (m *MemoryStore) CreateSession(sess domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tokenHashes[sess.TokenHash]; exists {
		return ErrDuplicate
	}
	m.sessions[sess.ID] = sess
	m.tokenHashes[sess.TokenHash] = sess.ID
	return nil
}

func (m *MemoryStore) GetSessionByTokenHash(hash string) (domain.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokenHashes[hash]
	if !ok {
		return domain.Session{}, false, nil
	}
	return m.sessions[id], true, nil
}

func (m *MemoryStore) ExtendSession(id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		sess.ExpiresAt = expiresAt
		m.sessions[id] = sess
	}
	return nil
}

func (m *MemoryStore) RevokeSession(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok && sess.RevokedAt == nil {
		sess.RevokedAt = &at
		m.sessions[id] = sess
	}
	return nil
}

func (m *MemoryStore) CreateConversation(conversation domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conversations[conversation.ID]; exists {
		return ErrDuplicate
	}
	m.conversations[conversation.ID] = conversation
	return nil
}

func (m *MemoryStore) GetConversation(id string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conversation, ok := m.conversations[id]
	return conversation, ok, nil
}

func (m *MemoryStore) AppendMessage(msg domain.Message) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMessageID++
	msg.ID = m.nextMessageID
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return msg.ID, nil
}

func (m *MemoryStore) ListMessages(conversationID string, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStore) GetTranslation(text string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	translated, ok := m.translations[text]
	return translated, ok, nil
}

// SaveTranslation records both directions of the pair.
func (m *MemoryStore) SaveTranslation(text, translated string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.translations[text] = translated
	m.translations[translated] = text
	return nil
}

func (m *MemoryStore) ReplaceStarters(starters []domain.Starter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]domain.Starter, len(starters))
	copy(next, starters)
	m.starters = next
	return nil
}

func (m *MemoryStore) ListStarters() ([]domain.Starter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Starter, len(m.starters))
	copy(out, m.starters)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (m *MemoryStore) GetStarter(id string) (domain.Starter, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, starter := range m.starters {
		if starter.ID == id {
			return starter, true, nil
		}
	}
	return domain.Starter{}, false, nil
}

func (m *MemoryStore) LastRefresh(clientIP string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.refreshes[clientIP]
	return at, ok, nil
}

func (m *MemoryStore) SetLastRefresh(clientIP string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes[clientIP] = at
	return nil
}

func (m *MemoryStore) GetSetting(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.settings[key]
	return value, ok, nil
}

func (m *MemoryStore) SetSetting(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}
