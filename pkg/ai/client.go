// Package ai wraps an OpenAI-compatible chat-completions endpoint.
// Works with OpenRouter, vLLM, LiteLLM, LocalAI, self-hosted models, etc.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"linguatutor/pkg/domain"
)

// DefaultBaseURL points at OpenRouter; baseURL must include the /v1 prefix.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// historyLimit caps how much conversation context is sent upstream.
const historyLimit = 20

// Client calls a chat-completions API. It performs a single attempt per
// request; callers decide how to degrade on failure.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	referer    string
	title      string
	httpClient *http.Client
}

// Config holds client construction options.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Referer and Title are forwarded as OpenRouter attribution headers.
	Referer string
	Title   string
	Timeout time.Duration
}

// NewClient builds a chat-completions client.
// apiKey can be empty for local models that do not require authentication.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		referer: strings.TrimSpace(cfg.Referer),
		title:   strings.TrimSpace(cfg.Title),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Reply generates an assistant turn for a conversation. History is capped at
// the most recent messages; unknown roles are skipped.
func (c *Client) Reply(ctx context.Context, history []domain.Message, targetLang string, mode domain.ConversationMode) (string, error) {
	systemPrompt := chatSystemPrompt
	if mode == domain.ModeTutor {
		systemPrompt = tutorSystemPrompt
	}
	messages := []oaiMessage{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, strings.ToUpper(targetLang))},
	}
	recent := history
	if len(recent) > historyLimit {
		recent = recent[len(recent)-historyLimit:]
	}
	for _, msg := range recent {
		switch msg.Role {
		case domain.RoleUser, domain.RoleAssistant:
			messages = append(messages, oaiMessage{Role: string(msg.Role), Content: msg.Text})
		}
	}
	return c.complete(ctx, oaiChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: ptr(0.7),
		MaxTokens:   500,
		TopP:        ptr(0.9),
	})
}

// Translate translates one text into the target language.
func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return c.complete(ctx, oaiChatRequest{
		Model: c.model,
		Messages: []oaiMessage{
			{Role: "system", Content: fmt.Sprintf(translatorSystemPrompt, strings.ToUpper(targetLang))},
			{Role: "user", Content: text},
		},
		Temperature: ptr(0.0),
		MaxTokens:   1000,
	})
}

// TranslateBatch translates several texts in parallel, preserving order.
// The batch is all-or-nothing: the first failure cancels the siblings and
// fails the whole call.
func (c *Client) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	out := make([]string, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			translated, err := c.Translate(ctx, text, targetLang)
			if err != nil {
				return err
			}
			out[i] = translated
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SynthesizeStarters asks the model to turn trending posts into at most
// count conversation starters.
func (c *Client) SynthesizeStarters(ctx context.Context, posts []domain.Post, count int) ([]domain.Starter, error) {
	if count <= 0 {
		count = 10
	}
	var sb strings.Builder
	for i, post := range posts {
		fmt.Fprintf(&sb, "%d. [r/%s, score %d] %s\n", i+1, post.Subreddit, post.Score, post.Title)
		if post.IsSelf && post.SelfText != "" {
			fmt.Fprintf(&sb, "   %s\n", post.SelfText)
		}
		if post.URL != "" {
			fmt.Fprintf(&sb, "   %s\n", post.URL)
		}
	}
	raw, err := c.complete(ctx, oaiChatRequest{
		Model: c.model,
		Messages: []oaiMessage{
			{Role: "system", Content: fmt.Sprintf(starterSystemPrompt, count)},
			{Role: "user", Content: sb.String()},
		},
		Temperature: ptr(0.7),
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, err
	}
	return parseStarters(raw, count)
}

// parseStarters decodes the model's JSON-array contract, tolerating code
// fences around the payload.
func parseStarters(raw string, limit int) ([]domain.Starter, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}
	if start := strings.Index(raw, "["); start > 0 {
		raw = raw[start:]
	}
	var items []struct {
		Title     string `json:"title"`
		Opener    string `json:"opener"`
		SourceURL string `json:"source_url"`
		Subreddit string `json:"subreddit"`
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode starters: %w", err)
	}
	starters := make([]domain.Starter, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		opener := strings.TrimSpace(item.Opener)
		if title == "" || opener == "" {
			continue
		}
		starters = append(starters, domain.Starter{
			Title:     title,
			Opener:    opener,
			SourceURL: strings.TrimSpace(item.SourceURL),
			Subreddit: strings.TrimSpace(item.Subreddit),
			Generator: domain.GeneratorLLM,
		})
		if len(starters) == limit {
			break
		}
	}
	if len(starters) == 0 {
		return nil, fmt.Errorf("no usable starters in model output")
	}
	return starters, nil
}

func (c *Client) complete(ctx context.Context, reqBody oaiChatRequest) (string, error) {
	if c.model == "" {
		return "", fmt.Errorf("generation model required")
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat-completions request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return "", fmt.Errorf("chat-completions api error: %s", errResp.Error.Message)
		}
		return "", fmt.Errorf("chat-completions api error: %s", resp.Status)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("chat-completions decode: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from chat-completions api")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from chat-completions api")
	}
	return text, nil
}

func ptr(f float64) *float64 { return &f }

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	TopP        *float64     `json:"top_p,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
