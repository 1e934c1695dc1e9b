package main

import (
	"log/slog"
	"net/http"
	"time"

	"linguatutor/internal/app"
	"linguatutor/internal/config"
	"linguatutor/internal/ratelimit"
	"linguatutor/internal/server"
	"linguatutor/internal/util"
	"linguatutor/pkg/ai"
	"linguatutor/pkg/feed"
	"linguatutor/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		util.Fatal("failed to load config", "err", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}

	var limiter ratelimit.FailureLimiter
	if cfg.RedisAddr != "" {
		limiter, err = ratelimit.NewRedisFailureLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "linguatutor:authfail",
			cfg.AuthFailThreshold, config.MustDuration(cfg.AuthFailWindow),
		)
		if err != nil {
			util.Fatal("failed to init redis limiter", "err", err)
		}
	} else {
		limiter, err = ratelimit.NewMemoryFailureLimiter(
			cfg.AuthFailThreshold, config.MustDuration(cfg.AuthFailWindow),
		)
		if err != nil {
			util.Fatal("failed to init limiter", "err", err)
		}
	}

	llm := ai.NewClient(ai.Config{
		BaseURL: cfg.OpenRouterBaseURL,
		APIKey:  cfg.OpenRouterAPIKey,
		Model:   cfg.OpenRouterModel,
		Referer: "https://linguatutor.app",
		Title:   "LinguaTutor",
	})
	feedClient := feed.NewClient(feed.Config{})

	appCore, err := app.New(st, llm, feedClient, limiter, app.Config{
		SessionTTL:        config.MustDuration(cfg.SessionTTL),
		RefreshCooldown:   config.MustDuration(cfg.RefreshCooldown),
		StarterCount:      cfg.StarterCount,
		StarterPreviewLen: cfg.StarterPreviewLen,
		FeedSubreddits:    cfg.FeedSubreddits,
		PostsPerSource:    cfg.FeedPostsPerSource,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("failed to parse trusted proxies", "err", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		StaticDir:      cfg.StaticDir,
		CookieSecure:   cfg.CookieSecure,
		TrustedProxies: trusted,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
