package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"linguatutor/internal/util"
	"linguatutor/pkg/domain"
)

// ListStarters returns the current starter set ordered by rank.
func (a *App) ListStarters() ([]domain.Starter, error) {
	return a.store.ListStarters()
}

// GetStarter returns one starter by id.
func (a *App) GetStarter(id string) (domain.Starter, error) {
	starter, ok, err := a.store.GetStarter(id)
	if err != nil {
		return domain.Starter{}, err
	}
	if !ok {
		return domain.Starter{}, ErrNotFound
	}
	return starter, nil
}

// RefreshStarters rebuilds the starter set from the feed. The per-IP
// cooldown is checked first; the replacement is atomic and the cooldown
// timestamp is recorded only after a successful replace.
func (a *App) RefreshStarters(ctx context.Context, clientIP string) ([]domain.Starter, error) {
	last, ok, err := a.store.LastRefresh(clientIP)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if ok {
		if elapsed := now.Sub(last); elapsed < a.cfg.RefreshCooldown {
			return nil, &CooldownError{Remaining: a.cfg.RefreshCooldown - elapsed}
		}
	}

	posts, err := a.feed.FetchAll(ctx, a.cfg.FeedSubreddits, a.cfg.PostsPerSource)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("%w: feed returned no posts", ErrUpstream)
	}

	starters, err := a.llm.SynthesizeStarters(ctx, posts, a.cfg.StarterCount)
	if err != nil || len(starters) == 0 {
		if err != nil {
			slog.Warn("starter synthesis failed, using fallback", "error", err)
		}
		starters = a.fallbackStarters(posts)
	}

	now = time.Now().UTC()
	for i := range starters {
		starters[i].ID = util.NewID()
		starters[i].Rank = i + 1
		starters[i].CreatedAt = now
		if starters[i].Generator == "" {
			starters[i].Generator = domain.GeneratorLLM
		}
	}
	if err := a.store.ReplaceStarters(starters); err != nil {
		return nil, err
	}
	if err := a.store.SetLastRefresh(clientIP, now); err != nil {
		slog.Warn("refresh log save failed", "client_ip", clientIP, "error", err)
	}
	slog.Info("starters refreshed", "count", len(starters), "posts", len(posts))
	return starters, nil
}

// fallbackStarters builds a deterministic starter set straight from the
// posts: dedup by normalized title, highest score first, fields truncated
// to the preview length.
func (a *App) fallbackStarters(posts []domain.Post) []domain.Starter {
	sorted := make([]domain.Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	seen := make(map[string]bool)
	starters := make([]domain.Starter, 0, a.cfg.StarterCount)
	for _, post := range sorted {
		key := normalizeTitle(post.Title)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		opener := post.SelfText
		if opener == "" {
			opener = "What do you think about this? " + post.Title
		}
		starters = append(starters, domain.Starter{
			Title:     truncate(post.Title, a.cfg.StarterPreviewLen),
			Opener:    truncate(opener, a.cfg.StarterPreviewLen),
			SourceURL: post.URL,
			Subreddit: post.Subreddit,
			Generator: domain.GeneratorFallback,
			Metadata: map[string]string{
				"score":        strconv.Itoa(post.Score),
				"num_comments": strconv.Itoa(post.NumComments),
			},
		})
		if len(starters) == a.cfg.StarterCount {
			break
		}
	}
	return starters
}

// normalizeTitle lowers the title and collapses it to letters, digits and
// single spaces so near-identical crossposts dedup.
func normalizeTitle(title string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
