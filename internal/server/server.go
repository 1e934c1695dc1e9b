// Package server exposes the HTTP surface: the JSON API, the session
// cookie plumbing, and the static frontend pages.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"linguatutor/internal/app"
	"linguatutor/internal/util"
	"linguatutor/pkg/domain"
)

const (
	sessionCookieName = "session_token"
	maxBodyBytes      = 1 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	StaticDir      string
	CookieSecure   bool
	TrustedProxies *util.TrustedProxies
}

// Server holds the routed handler and its dependencies.
type Server struct {
	app          *app.App
	staticDir    string
	cookieSecure bool
	trusted      *util.TrustedProxies
	mux          *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = "web/static"
	}
	s := &Server{
		app:          cfg.App,
		staticDir:    staticDir,
		cookieSecure: cfg.CookieSecure,
		trusted:      cfg.TrustedProxies,
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)

	// authenticated API
	s.mux.Handle("/api/me", s.withUser(s.handleMe))
	s.mux.Handle("/api/chat", s.withUser(s.handleChat))
	s.mux.Handle("/api/translate", s.withUser(s.handleTranslate))
	s.mux.Handle("/api/conversations/", s.withUser(s.handleConversationByID))
	s.mux.Handle("/api/conversation_starters", s.withUser(s.handleStarters))
	s.mux.Handle("/api/conversation_starters/", s.withUser(s.handleStarterSubpath))
	s.mux.Handle("/api/topics", s.withUser(s.handleTopics))

	// pages
	s.mux.HandleFunc("/auth", s.handleAuthPage)
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	s.mux.HandleFunc("/", s.handleIndex)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleIndex serves the app shell on exactly "/", gated on a live
// session; anonymous visitors are sent to the auth page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	token := s.sessionToken(r)
	_, newExpiry, err := s.app.Authenticate(token)
	if err != nil {
		http.Redirect(w, r, "/auth?next="+url.QueryEscape(sanitizeNext(r.URL.RequestURI())), http.StatusFound)
		return
	}
	s.setSessionCookie(w, token, newExpiry)
	http.ServeFile(w, r, filepath.Join(s.staticDir, "index.html"))
}

func (s *Server) handleAuthPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.staticDir, "auth.html"))
}

// sanitizeNext keeps post-login redirects on this origin: a single
// leading slash, never scheme-relative, never back to the auth page.
func sanitizeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	if next == "/auth" || strings.HasPrefix(next, "/auth?") || strings.HasPrefix(next, "/auth/") {
		return "/"
	}
	return next
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

// withUser authenticates the session cookie and reissues it with the
// extended expiry before invoking the handler.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.sessionToken(r)
		user, newExpiry, err := s.app.Authenticate(token)
		if err != nil {
			if errors.Is(err, app.ErrUnauthenticated) {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		s.setSessionCookie(w, token, newExpiry)
		next(w, r, user)
	})
}

func (s *Server) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trusted)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps core errors onto HTTP statuses. Raw upstream
// failure text is never surfaced.
func writeAppError(w http.ResponseWriter, err error) {
	var ve *app.ValidationError
	var cd *app.CooldownError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, app.ErrInvalidUsername):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrInvalidInviteCode):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, app.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &cd):
		seconds := int(cd.Remaining.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "refresh cooldown active",
			"retry_after": seconds,
		})
	case errors.Is(err, app.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, app.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream service failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
