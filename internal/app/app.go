// Package app holds the core orchestration: accounts and sessions, chat
// turns, cache-aware translation, and conversation starter refreshes.
package app

import (
	"context"
	"errors"
	"time"

	"linguatutor/internal/ratelimit"
	"linguatutor/pkg/domain"
	"linguatutor/pkg/store"
)

// LLM is the slice of the chat-completions client the app depends on.
type LLM interface {
	Reply(ctx context.Context, history []domain.Message, targetLang string, mode domain.ConversationMode) (string, error)
	TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error)
	SynthesizeStarters(ctx context.Context, posts []domain.Post, count int) ([]domain.Starter, error)
}

// Feed fetches trending posts used to build conversation starters.
type Feed interface {
	FetchAll(ctx context.Context, subreddits []string, perSource int) ([]domain.Post, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	SessionTTL        time.Duration
	RefreshCooldown   time.Duration
	StarterCount      int
	StarterPreviewLen int
	FeedSubreddits    []string
	PostsPerSource    int

	DefaultPrimaryLang   string
	DefaultSecondaryLang string
}

// App wires storage, the LLM client, the feed client and the auth
// failure throttle together.
type App struct {
	store    store.Store
	llm      LLM
	feed     Feed
	failures ratelimit.FailureLimiter
	cfg      Config
}

// New constructs the application core.
func New(st store.Store, llm LLM, feed Feed, failures ratelimit.FailureLimiter, cfg Config) (*App, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if failures == nil {
		return nil, errors.New("failure limiter is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	if cfg.RefreshCooldown <= 0 {
		cfg.RefreshCooldown = 10 * time.Minute
	}
	if cfg.StarterCount <= 0 {
		cfg.StarterCount = 10
	}
	if cfg.StarterPreviewLen <= 0 {
		cfg.StarterPreviewLen = 200
	}
	if cfg.PostsPerSource <= 0 {
		cfg.PostsPerSource = 5
	}
	if len(cfg.FeedSubreddits) == 0 {
		cfg.FeedSubreddits = []string{"popular"}
	}
	if cfg.DefaultPrimaryLang == "" {
		cfg.DefaultPrimaryLang = "es"
	}
	if cfg.DefaultSecondaryLang == "" {
		cfg.DefaultSecondaryLang = "en"
	}
	return &App{
		store:    st,
		llm:      llm,
		feed:     feed,
		failures: failures,
		cfg:      cfg,
	}, nil
}
