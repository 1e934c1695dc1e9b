package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"linguatutor/pkg/domain"
)

const migrateLockID int64 = 58215821

// SchemaVersion is recorded on first startup. Migrations are additive only:
// AutoMigrate adds tables and columns, never drops or rewrites them.
const SchemaVersion = 2

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&SessionModel{},
			&ConversationModel{},
			&MessageModel{},
			&TranslationModel{},
			&StarterModel{},
			&RefreshLogModel{},
			&SettingModel{},
			&SchemaVersionModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		var current SchemaVersionModel
		err := tx.Order("version DESC").First(&current).Error
		if err == gorm.ErrRecordNotFound {
			return tx.Create(&SchemaVersionModel{
				Version:   SchemaVersion,
				AppliedAt: time.Now().UTC(),
			}).Error
		}
		return err
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("db handle: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("db conn: %w", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

// translateErr maps gorm's translated driver errors onto the store
// sentinels so callers can branch without knowing the backend.
func translateErr(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// CreateUser inserts a new user row.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	return translateErr(s.db.Create(&model).Error)
}

// GetUserByUsername looks up a user by normalized username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UpdateUserProfile applies the non-nil profile fields.
func (s *GormStore) UpdateUserProfile(id string, displayName, primaryLang, secondaryLang *string) error {
	updates := map[string]any{}
	if displayName != nil {
		updates["display_name"] = *displayName
	}
	if primaryLang != nil {
		updates["preferred_primary_lang"] = *primaryLang
	}
	if secondaryLang != nil {
		updates["preferred_secondary_lang"] = *secondaryLang
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.Model(&UserModel{}).Where("id = ?", id).Updates(updates).Error
}

// TouchLastSeen updates the user's last-seen timestamp.
func (s *GormStore) TouchLastSeen(id string, at time.Time) error {
	return s.db.Model(&UserModel{}).Where("id = ?", id).
		Update("last_seen_at", at.UTC()).Error
}

// CreateSession inserts a session row.
func (s *GormStore) CreateSession(sess domain.Session) error {
	model := sessionToModel(sess)
	return translateErr(s.db.Create(&model).Error)
}

// GetSessionByTokenHash resolves a session by its token hash.
func (s *GormStore) GetSessionByTokenHash(hash string) (domain.Session, bool, error) {
	var model SessionModel
	if err := s.db.Where("token_hash = ?", hash).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// ExtendSession moves the expiry forward (rolling TTL).
func (s *GormStore) ExtendSession(id string, expiresAt time.Time) error {
	return s.db.Model(&SessionModel{}).Where("id = ?", id).
		Update("expires_at", expiresAt.UTC()).Error
}

// RevokeSession marks the session revoked. The row is kept for audit.
func (s *GormStore) RevokeSession(id string, at time.Time) error {
	at = at.UTC()
	return s.db.Model(&SessionModel{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", &at).Error
}

// CreateConversation creates a new conversation record.
func (s *GormStore) CreateConversation(conversation domain.Conversation) error {
	model := conversationToModel(conversation)
	return s.db.Create(&model).Error
}

// GetConversation returns one conversation by ID.
func (s *GormStore) GetConversation(id string) (domain.Conversation, bool, error) {
	var model ConversationModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	return conversationFromModel(model), true, nil
}

// AppendMessage records a message and returns its assigned ID.
func (s *GormStore) AppendMessage(msg domain.Message) (int64, error) {
	model := messageToModel(msg)
	if err := s.db.Create(&model).Error; err != nil {
		return 0, err
	}
	return model.ID, nil
}

// ListMessages returns a conversation's messages ordered oldest first.
func (s *GormStore) ListMessages(conversationID string, limit int) ([]domain.Message, error) {
	var models []MessageModel
	q := s.db.Where("conversation_id = ?", conversationID)
	if limit > 0 {
		// Most recent window, returned in chronological order below.
		q = q.Order("created_at DESC, id DESC").Limit(limit)
	} else {
		q = q.Order("created_at ASC, id ASC")
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	if limit > 0 {
		for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
			models[i], models[j] = models[j], models[i]
		}
	}
	items := make([]domain.Message, 0, len(models))
	for _, model := range models {
		items = append(items, messageFromModel(model))
	}
	return items, nil
}

// GetTranslation returns a cached translation for the text, if any.
func (s *GormStore) GetTranslation(text string) (string, bool, error) {
	var model TranslationModel
	if err := s.db.Where("text = ?", text).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return model.TranslatedText, true, nil
}

// SaveTranslation stores both directions of a pair so a later lookup by
// either text hits the cache. Re-saving refreshes created_at only.
func (s *GormStore) SaveTranslation(text, translated string) error {
	now := time.Now().UTC()
	rows := []TranslationModel{
		{Text: text, TranslatedText: translated, CreatedAt: now},
	}
	// When the translation equals the input, the reverse row would be
	// the same primary key twice in one statement, which Postgres
	// rejects under ON CONFLICT.
	if translated != text {
		rows = append(rows, TranslationModel{Text: translated, TranslatedText: text, CreatedAt: now})
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "text"}, {Name: "translated_text"}},
		DoUpdates: clause.AssignmentColumns([]string{"created_at"}),
	}).Create(&rows).Error
}

// ReplaceStarters swaps the whole starter set in one transaction so readers
// never observe a partial set.
func (s *GormStore) ReplaceStarters(starters []domain.Starter) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&StarterModel{}).Error; err != nil {
			return err
		}
		for _, starter := range starters {
			model, err := starterToModel(starter)
			if err != nil {
				return err
			}
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListStarters returns the current starter set ordered by rank.
func (s *GormStore) ListStarters() ([]domain.Starter, error) {
	var models []StarterModel
	if err := s.db.Order("rank ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Starter, 0, len(models))
	for _, model := range models {
		starter, err := starterFromModel(model)
		if err != nil {
			return nil, err
		}
		items = append(items, starter)
	}
	return items, nil
}

// GetStarter returns one starter by ID.
func (s *GormStore) GetStarter(id string) (domain.Starter, bool, error) {
	var model StarterModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Starter{}, false, nil
		}
		return domain.Starter{}, false, err
	}
	starter, err := starterFromModel(model)
	if err != nil {
		return domain.Starter{}, false, err
	}
	return starter, true, nil
}

// LastRefresh returns the last successful refresh time for a client IP.
func (s *GormStore) LastRefresh(clientIP string) (time.Time, bool, error) {
	var model RefreshLogModel
	if err := s.db.First(&model, "client_ip = ?", clientIP).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return model.LastRefreshAt, true, nil
}

// SetLastRefresh upserts the refresh log row for a client IP.
func (s *GormStore) SetLastRefresh(clientIP string, at time.Time) error {
	model := RefreshLogModel{ClientIP: clientIP, LastRefreshAt: at.UTC()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_ip"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_refresh_at"}),
	}).Create(&model).Error
}

// GetSetting returns a settings value.
func (s *GormStore) GetSetting(key string) (string, bool, error) {
	var model SettingModel
	if err := s.db.First(&model, "key = ?", key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return model.Value, true, nil
}

// SetSetting upserts a settings value.
func (s *GormStore) SetSetting(key, value string) error {
	model := SettingModel{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model).Error
}

// model conversions

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:                     u.ID,
		Username:               u.Username,
		PasswordHash:           u.PasswordHash,
		DisplayName:            u.DisplayName,
		PreferredPrimaryLang:   u.PreferredPrimaryLang,
		PreferredSecondaryLang: u.PreferredSecondaryLang,
		CreatedAt:              u.CreatedAt,
		LastSeenAt:             u.LastSeenAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:                     m.ID,
		Username:               m.Username,
		PasswordHash:           m.PasswordHash,
		DisplayName:            m.DisplayName,
		PreferredPrimaryLang:   m.PreferredPrimaryLang,
		PreferredSecondaryLang: m.PreferredSecondaryLang,
		CreatedAt:              m.CreatedAt,
		LastSeenAt:             m.LastSeenAt,
	}
}

func sessionToModel(s domain.Session) SessionModel {
	return SessionModel{
		ID:        s.ID,
		UserID:    s.UserID,
		TokenHash: s.TokenHash,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		RevokedAt: s.RevokedAt,
		ClientIP:  s.ClientIP,
		UserAgent: s.UserAgent,
	}
}

func sessionFromModel(m SessionModel) domain.Session {
	return domain.Session{
		ID:        m.ID,
		UserID:    m.UserID,
		TokenHash: m.TokenHash,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		RevokedAt: m.RevokedAt,
		ClientIP:  m.ClientIP,
		UserAgent: m.UserAgent,
	}
}

func conversationToModel(c domain.Conversation) ConversationModel {
	model := ConversationModel{
		ID:            c.ID,
		PrimaryLang:   c.PrimaryLang,
		SecondaryLang: c.SecondaryLang,
		Mode:          string(c.Mode),
		CreatedAt:     c.CreatedAt,
	}
	if c.UserID != "" {
		userID := c.UserID
		model.UserID = &userID
	}
	return model
}

func conversationFromModel(m ConversationModel) domain.Conversation {
	conversation := domain.Conversation{
		ID:            m.ID,
		PrimaryLang:   m.PrimaryLang,
		SecondaryLang: m.SecondaryLang,
		Mode:          domain.ConversationMode(m.Mode),
		CreatedAt:     m.CreatedAt,
	}
	if m.UserID != nil {
		conversation.UserID = *m.UserID
	}
	return conversation
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           string(msg.Role),
		Lang:           msg.Lang,
		Text:           msg.Text,
		CreatedAt:      msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           domain.MessageRole(m.Role),
		Lang:           m.Lang,
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
	}
}

func starterToModel(st domain.Starter) (StarterModel, error) {
	model := StarterModel{
		ID:        st.ID,
		Title:     st.Title,
		Opener:    st.Opener,
		SourceURL: st.SourceURL,
		Subreddit: st.Subreddit,
		Rank:      st.Rank,
		Generator: string(st.Generator),
		CreatedAt: st.CreatedAt,
	}
	if len(st.Metadata) > 0 {
		raw, err := datatypesJSON(st.Metadata)
		if err != nil {
			return StarterModel{}, fmt.Errorf("encode starter metadata: %w", err)
		}
		model.Metadata = raw
	}
	return model, nil
}

func starterFromModel(m StarterModel) (domain.Starter, error) {
	starter := domain.Starter{
		ID:        m.ID,
		Title:     m.Title,
		Opener:    m.Opener,
		SourceURL: m.SourceURL,
		Subreddit: m.Subreddit,
		Rank:      m.Rank,
		Generator: domain.StarterGenerator(m.Generator),
		CreatedAt: m.CreatedAt,
	}
	if len(m.Metadata) > 0 {
		meta, err := metadataFromJSON(m.Metadata)
		if err != nil {
			return domain.Starter{}, fmt.Errorf("decode starter metadata: %w", err)
		}
		starter.Metadata = meta
	}
	return starter, nil
}

func datatypesJSON(meta map[string]string) (datatypes.JSON, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func metadataFromJSON(raw datatypes.JSON) (map[string]string, error) {
	meta := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}
