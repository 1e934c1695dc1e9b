// Package config loads configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML. Durations are
// strings in Go duration syntax ("15m", "720h").
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL string `yaml:"databaseURL"`

	// Redis is optional; when set the auth failure throttle is shared
	// across instances instead of kept in-process.
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	OpenRouterAPIKey  string `yaml:"openRouterAPIKey"`
	OpenRouterBaseURL string `yaml:"openRouterBaseURL"`
	OpenRouterModel   string `yaml:"openRouterModel"`

	FeedSubreddits     []string `yaml:"feedSubreddits"`
	FeedPostsPerSource int      `yaml:"feedPostsPerSource"`

	StarterCount      int    `yaml:"starterCount"`
	StarterPreviewLen int    `yaml:"starterPreviewLen"`
	RefreshCooldown   string `yaml:"refreshCooldown"`

	AuthFailWindow    string `yaml:"authFailWindow"`
	AuthFailThreshold int    `yaml:"authFailThreshold"`

	SessionTTL   string `yaml:"sessionTTL"`
	CookieSecure bool   `yaml:"cookieSecure"`

	StaticDir         string   `yaml:"staticDir"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`
}

// Load reads config from path (defaults to config.yaml). A missing file is
// not an error; everything can come from the environment.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.OpenRouterAPIKey = v
	}
	if v := os.Getenv("OPENROUTER_BASE_URL"); v != "" {
		cfg.OpenRouterBaseURL = v
	}
	if v := os.Getenv("OPENROUTER_MODEL"); v != "" {
		cfg.OpenRouterModel = v
	}
	if v := os.Getenv("FEED_SUBREDDITS"); v != "" {
		cfg.FeedSubreddits = splitCSV(v)
	}
	if v := os.Getenv("FEED_POSTS_PER_SOURCE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FeedPostsPerSource = n
		}
	}
	if v := os.Getenv("STARTER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StarterCount = n
		}
	}
	if v := os.Getenv("STARTER_PREVIEW_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StarterPreviewLen = n
		}
	}
	if v := os.Getenv("REFRESH_COOLDOWN"); v != "" {
		cfg.RefreshCooldown = strings.TrimSpace(v)
	}
	if v := os.Getenv("AUTH_FAIL_WINDOW"); v != "" {
		cfg.AuthFailWindow = strings.TrimSpace(v)
	}
	if v := os.Getenv("AUTH_FAIL_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AuthFailThreshold = n
		}
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		cfg.SessionTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.CookieSecure = b
		}
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}

	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() FileConfig {
	return FileConfig{
		Port:               "8000",
		LogLevel:           "info",
		OpenRouterBaseURL:  "https://openrouter.ai/api/v1",
		OpenRouterModel:    "nvidia/nemotron-3-nano-30b-a3b:free",
		FeedSubreddits:     []string{"popular"},
		FeedPostsPerSource: 5,
		StarterCount:       10,
		StarterPreviewLen:  200,
		RefreshCooldown:    "10m",
		AuthFailWindow:     "15m",
		AuthFailThreshold:  10,
		SessionTTL:         "720h",
		StaticDir:          "web/static",
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.OpenRouterAPIKey == "" {
		return errors.New("config: openRouterAPIKey is required (set in config.yaml or OPENROUTER_API_KEY)")
	}
	if cfg.OpenRouterModel == "" {
		return errors.New("config: openRouterModel is required")
	}
	if len(cfg.FeedSubreddits) == 0 {
		return errors.New("config: feedSubreddits must not be empty")
	}
	if cfg.AuthFailThreshold <= 0 || cfg.StarterCount <= 0 || cfg.FeedPostsPerSource <= 0 {
		return errors.New("config: counts and thresholds must be positive")
	}
	for _, field := range []struct{ name, value string }{
		{"refreshCooldown", cfg.RefreshCooldown},
		{"authFailWindow", cfg.AuthFailWindow},
		{"sessionTTL", cfg.SessionTTL},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("config: invalid %s duration: %w", field.name, err)
		}
	}
	return nil
}

// MustDuration parses a duration already checked by validateConfig.
func MustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("config: invalid duration %q", value))
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
