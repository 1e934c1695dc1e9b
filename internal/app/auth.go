package app

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"linguatutor/internal/util"
	"linguatutor/pkg/auth"
	"linguatutor/pkg/domain"
	"linguatutor/pkg/store"
)

var usernameRe = regexp.MustCompile(`^[a-z0-9_]{3,24}$`)

// RegisterInput carries a signup request.
type RegisterInput struct {
	Username    string
	Password    string
	InviteCode  string
	DisplayName string
	ClientIP    string
	UserAgent   string
}

// Register creates an account gated on the beta invite code and
// immediately opens a session for it. Returns the user, the raw session
// token and its expiry.
func (a *App) Register(in RegisterInput) (domain.User, string, time.Time, error) {
	if !a.failures.Allow(in.ClientIP) {
		return domain.User{}, "", time.Time{}, ErrTooManyAttempts
	}

	username := strings.ToLower(strings.TrimSpace(in.Username))
	if !usernameRe.MatchString(username) {
		return domain.User{}, "", time.Time{}, ErrInvalidUsername
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, "", time.Time{}, &ValidationError{Field: "password", Reason: err.Error()}
	}

	stored, _, err := a.store.GetSetting(store.SettingBetaInviteHash)
	if err != nil {
		return domain.User{}, "", time.Time{}, err
	}
	if !auth.CheckInviteCode(in.InviteCode, stored) {
		a.failures.RecordFailure(in.ClientIP)
		return domain.User{}, "", time.Time{}, ErrInvalidInviteCode
	}

	if _, ok, err := a.store.GetUserByUsername(username); err != nil {
		return domain.User{}, "", time.Time{}, err
	} else if ok {
		return domain.User{}, "", time.Time{}, ErrUsernameTaken
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, "", time.Time{}, err
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Username:     username,
		PasswordHash: hash,
		DisplayName:  displayName,
		CreatedAt:    now,
		LastSeenAt:   now,
	}
	if err := a.store.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, "", time.Time{}, ErrUsernameTaken
		}
		return domain.User{}, "", time.Time{}, err
	}

	a.failures.Reset(in.ClientIP)
	token, expiresAt, err := a.issueSession(user.ID, in.ClientIP, in.UserAgent)
	if err != nil {
		return domain.User{}, "", time.Time{}, err
	}
	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, token, expiresAt, nil
}

// LoginInput carries a login request.
type LoginInput struct {
	Username  string
	Password  string
	ClientIP  string
	UserAgent string
}

// Login verifies credentials and opens a session. Failures count toward
// the per-IP throttle; a success clears it.
func (a *App) Login(in LoginInput) (domain.User, string, time.Time, error) {
	if !a.failures.Allow(in.ClientIP) {
		return domain.User{}, "", time.Time{}, ErrTooManyAttempts
	}

	username := strings.ToLower(strings.TrimSpace(in.Username))
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", time.Time{}, err
	}
	if !ok || !auth.CheckPassword(in.Password, user.PasswordHash) {
		a.failures.RecordFailure(in.ClientIP)
		return domain.User{}, "", time.Time{}, ErrInvalidCredentials
	}

	a.failures.Reset(in.ClientIP)
	token, expiresAt, err := a.issueSession(user.ID, in.ClientIP, in.UserAgent)
	if err != nil {
		return domain.User{}, "", time.Time{}, err
	}
	now := time.Now().UTC()
	if err := a.store.TouchLastSeen(user.ID, now); err != nil {
		slog.Warn("touch last_seen failed", "user_id", user.ID, "error", err)
	} else {
		user.LastSeenAt = now
	}
	slog.Info("user logged in", "user_id", user.ID)
	return user, token, expiresAt, nil
}

// issueSession mints a fresh opaque token and persists its hash.
func (a *App) issueSession(userID, clientIP, userAgent string) (string, time.Time, error) {
	token, err := auth.NewSessionToken()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	sess := domain.Session{
		ID:        util.NewID(),
		UserID:    userID,
		TokenHash: auth.HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(a.cfg.SessionTTL),
		ClientIP:  clientIP,
		UserAgent: userAgent,
	}
	if err := a.store.CreateSession(sess); err != nil {
		return "", time.Time{}, err
	}
	return token, sess.ExpiresAt, nil
}

// Authenticate resolves a raw session token to its user and extends the
// session's expiry (rolling TTL). The returned time is the new expiry
// the caller should reissue on the cookie.
func (a *App) Authenticate(token string) (domain.User, time.Time, error) {
	if token == "" {
		return domain.User{}, time.Time{}, ErrUnauthenticated
	}
	sess, ok, err := a.store.GetSessionByTokenHash(auth.HashToken(token))
	if err != nil {
		return domain.User{}, time.Time{}, err
	}
	now := time.Now().UTC()
	if !ok || !sess.Valid(now) {
		return domain.User{}, time.Time{}, ErrUnauthenticated
	}

	user, ok, err := a.store.GetUserByID(sess.UserID)
	if err != nil {
		return domain.User{}, time.Time{}, err
	}
	if !ok {
		return domain.User{}, time.Time{}, ErrUnauthenticated
	}

	newExpiry := now.Add(a.cfg.SessionTTL)
	if err := a.store.ExtendSession(sess.ID, newExpiry); err != nil {
		slog.Warn("extend session failed", "session_id", sess.ID, "error", err)
		newExpiry = sess.ExpiresAt
	}
	if err := a.store.TouchLastSeen(user.ID, now); err != nil {
		slog.Warn("touch last_seen failed", "user_id", user.ID, "error", err)
	} else {
		user.LastSeenAt = now
	}
	return user, newExpiry, nil
}

// Logout revokes the session behind the token. Unknown tokens are a
// no-op so logout is idempotent.
func (a *App) Logout(token string) error {
	if token == "" {
		return nil
	}
	sess, ok, err := a.store.GetSessionByTokenHash(auth.HashToken(token))
	if err != nil {
		return err
	}
	if !ok || sess.RevokedAt != nil {
		return nil
	}
	return a.store.RevokeSession(sess.ID, time.Now().UTC())
}

// ProfileUpdate carries the optional fields of a profile patch; nil
// means leave unchanged.
type ProfileUpdate struct {
	DisplayName   *string
	PrimaryLang   *string
	SecondaryLang *string
}

// UpdateProfile applies a partial profile update and returns the fresh
// user record.
func (a *App) UpdateProfile(userID string, upd ProfileUpdate) (domain.User, error) {
	if upd.DisplayName != nil {
		trimmed := strings.TrimSpace(*upd.DisplayName)
		if trimmed == "" {
			return domain.User{}, &ValidationError{Field: "display_name", Reason: "must not be empty"}
		}
		upd.DisplayName = &trimmed
	}
	for _, f := range []struct {
		name string
		val  *string
	}{
		{"preferred_primary_lang", upd.PrimaryLang},
		{"preferred_secondary_lang", upd.SecondaryLang},
	} {
		if f.val == nil {
			continue
		}
		norm := strings.ToLower(strings.TrimSpace(*f.val))
		if !validLangCode(norm) {
			return domain.User{}, &ValidationError{Field: f.name, Reason: "must be a two-letter language code"}
		}
		*f.val = norm
	}

	if err := a.store.UpdateUserProfile(userID, upd.DisplayName, upd.PrimaryLang, upd.SecondaryLang); err != nil {
		return domain.User{}, err
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

func validLangCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
