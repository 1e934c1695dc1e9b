package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"linguatutor/internal/app"
	"linguatutor/pkg/domain"
)

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	InviteCode  string `json:"invite_code"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, token, expiresAt, err := s.app.Register(app.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		InviteCode:  req.InviteCode,
		DisplayName: req.DisplayName,
		ClientIP:    s.clientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.setSessionCookie(w, token, expiresAt)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, token, expiresAt, err := s.app.Login(app.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		ClientIP:  s.clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.setSessionCookie(w, token, expiresAt)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.app.Logout(s.sessionToken(r)); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type profilePatch struct {
	DisplayName   *string `json:"display_name"`
	PrimaryLang   *string `json:"preferred_primary_lang"`
	SecondaryLang *string `json:"preferred_secondary_lang"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	case http.MethodPatch:
		var req profilePatch
		if !decodeJSON(w, r, &req) {
			return
		}
		updated, err := s.app.UpdateProfile(user.ID, app.ProfileUpdate{
			DisplayName:   req.DisplayName,
			PrimaryLang:   req.PrimaryLang,
			SecondaryLang: req.SecondaryLang,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": updated})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest carries one turn. Clients either send `message` or a full
// `messages` transcript, in which case the latest user entry is used.
type chatRequest struct {
	ConversationID string        `json:"conversation_id"`
	Message        string        `json:"message"`
	Messages       []chatMessage `json:"messages"`
	PrimaryLang    string        `json:"primary_lang"`
	SecondaryLang  string        `json:"secondary_lang"`
	Mode           string        `json:"mode"`
}

func (r chatRequest) userText() string {
	if r.Message != "" {
		return r.Message
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.ChatTurn(r.Context(), app.ChatInput{
		ConversationID: req.ConversationID,
		Text:           req.userText(),
		PrimaryLang:    req.PrimaryLang,
		SecondaryLang:  req.SecondaryLang,
		Mode:           domain.ConversationMode(req.Mode),
		UserID:         user.ID,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": res.Conversation.ID,
		"primary_lang":    res.Conversation.PrimaryLang,
		"secondary_lang":  res.Conversation.SecondaryLang,
		"mode":            res.Conversation.Mode,
		"reply":           res.Reply.Text,
	})
}

// translateRequest accepts `text` as either a JSON string or an array
// of strings; single input unwraps back to a single output.
type translateRequest struct {
	Text       json.RawMessage `json:"text"`
	TargetLang string          `json:"target_lang"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req translateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var texts []string
	single := false
	switch {
	case len(req.Text) == 0:
		writeError(w, http.StatusBadRequest, "text is required")
		return
	case req.Text[0] == '"':
		var one string
		if err := json.Unmarshal(req.Text, &one); err != nil {
			writeError(w, http.StatusBadRequest, "invalid text")
			return
		}
		texts = []string{one}
		single = true
	case req.Text[0] == '[':
		if err := json.Unmarshal(req.Text, &texts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid text list")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "text must be a string or a list of strings")
		return
	}

	out, err := s.app.Translate(r.Context(), texts, req.TargetLang)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if single {
		writeJSON(w, http.StatusOK, map[string]string{"translated_text": out[0]})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"translated_texts": out})
}

func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	conv, msgs, err := s.app.ConversationHistory(id, user.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     msgs,
	})
}

func (s *Server) handleStarters(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	starters, err := s.app.ListStarters()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"starters": starterSummaries(starters)})
}

// handleStarterSubpath serves both the refresh action and starter detail.
func (s *Server) handleStarterSubpath(w http.ResponseWriter, r *http.Request, _ domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversation_starters/")
	if rest == "refresh" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		starters, err := s.app.RefreshStarters(r.Context(), s.clientIP(r))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"starters":     starterSummaries(starters),
			"count":        len(starters),
			"refreshed_at": time.Now().UTC(),
		})
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	starter, err := s.app.GetStarter(rest)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, starter)
}

// handleTopics keeps the pre-rename client contract alive: the starter
// list under a "topics" key.
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	starters, err := s.app.ListStarters()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": starterSummaries(starters)})
}

type starterSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Opener    string `json:"opener"`
	Subreddit string `json:"subreddit,omitempty"`
	Rank      int    `json:"rank"`
	Generator string `json:"generator"`
}

func starterSummaries(starters []domain.Starter) []starterSummary {
	out := make([]starterSummary, 0, len(starters))
	for _, s := range starters {
		out = append(out, starterSummary{
			ID:        s.ID,
			Title:     s.Title,
			Opener:    s.Opener,
			Subreddit: s.Subreddit,
			Rank:      s.Rank,
			Generator: string(s.Generator),
		})
	}
	return out
}
