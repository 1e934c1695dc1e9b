// Package feed fetches trending posts from Reddit's public JSON API.
// No authentication is needed for public listings as long as a real
// User-Agent is sent.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"linguatutor/pkg/domain"
)

const (
	defaultBaseURL   = "https://www.reddit.com"
	defaultUserAgent = "LanguageLearningTutor/1.0 (Language learning chatbot)"
	selfTextLimit    = 500
)

// Client fetches top posts from subreddits.
type Client struct {
	baseURL    string
	userAgent  string
	timeFilter string
	httpClient *http.Client
}

// Config holds feed client options; zero values pick defaults.
type Config struct {
	BaseURL    string
	UserAgent  string
	TimeFilter string // hour, day, week, month, year, all
	Timeout    time.Duration
}

// NewClient builds a Reddit listing client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	timeFilter := cfg.TimeFilter
	if timeFilter == "" {
		timeFilter = "day"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		timeFilter: timeFilter,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchTop returns the top posts of one subreddit. Limit is clamped to
// Reddit's 1..100 range.
func (c *Client) FetchTop(ctx context.Context, subreddit string, limit int) ([]domain.Post, error) {
	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 1
	}
	endpoint := fmt.Sprintf("%s/r/%s/top.json", c.baseURL, url.PathEscape(subreddit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("t", c.timeFilter)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", subreddit, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch r/%s: status %d", subreddit, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s listing: %w", subreddit, err)
	}

	posts := make([]domain.Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		data := child.Data
		selfText := data.SelfText
		if utf8.RuneCountInString(selfText) > selfTextLimit {
			runes := []rune(selfText)
			selfText = string(runes[:selfTextLimit])
		}
		posts = append(posts, domain.Post{
			Title:       data.Title,
			Subreddit:   data.Subreddit,
			Score:       data.Score,
			URL:         "https://reddit.com" + data.Permalink,
			CreatedUTC:  data.CreatedUTC,
			NumComments: data.NumComments,
			SelfText:    selfText,
			Domain:      data.Domain,
			IsSelf:      data.IsSelf,
		})
	}
	return posts, nil
}

// FetchAll fetches several subreddits concurrently. One subreddit failing
// does not abort the others; its error is logged and its posts skipped.
// An error is returned only when every source failed.
func (c *Client) FetchAll(ctx context.Context, subreddits []string, perSource int) ([]domain.Post, error) {
	type result struct {
		posts []domain.Post
		err   error
	}
	results := make([]result, len(subreddits))
	var wg sync.WaitGroup
	for i, subreddit := range subreddits {
		i, subreddit := i, subreddit
		wg.Add(1)
		go func() {
			defer wg.Done()
			posts, err := c.FetchTop(ctx, subreddit, perSource)
			results[i] = result{posts: posts, err: err}
		}()
	}
	wg.Wait()

	var all []domain.Post
	var lastErr error
	for i, res := range results {
		if res.err != nil {
			lastErr = res.err
			slog.Warn("feed source failed", "subreddit", subreddits[i], "err", res.err)
			continue
		}
		all = append(all, res.posts...)
	}
	if len(all) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return all, nil
}

// Reddit listing response shape.

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	NumComments int     `json:"num_comments"`
	SelfText    string  `json:"selftext"`
	Domain      string  `json:"domain"`
	IsSelf      bool    `json:"is_self"`
}
